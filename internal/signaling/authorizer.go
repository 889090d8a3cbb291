package signaling

import (
	"errors"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/auth"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
)

// ClientHello carries the credential from an in-band {"type":"auth"} message.
type ClientHello struct {
	APIKey string
	Token  string
}

// Authorizer decides whether a WebSocket client may use the relay. hello is
// nil when only the upgrade request is available.
type Authorizer interface {
	Authorize(r *http.Request, hello *ClientHello) error
}

type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(*http.Request, *ClientHello) error { return nil }

// AuthAuthorizer enforces AUTH_MODE. The in-band auth message wins over
// headers and query parameters on the upgrade request.
type AuthAuthorizer struct {
	mode     config.AuthMode
	verifier auth.Verifier
}

func NewAuthAuthorizer(cfg config.Config) (Authorizer, error) {
	if cfg.AuthMode == config.AuthModeNone {
		return AllowAllAuthorizer{}, nil
	}
	v, err := auth.NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return AuthAuthorizer{mode: cfg.AuthMode, verifier: v}, nil
}

func (a AuthAuthorizer) Authorize(r *http.Request, hello *ClientHello) error {
	if a.verifier == nil {
		return errors.New("auth verifier not configured")
	}

	var (
		cred string
		err  error
	)
	if hello != nil {
		cred, err = auth.CredentialFromAuthMessage(a.mode, hello.APIKey, hello.Token)
	}
	if hello == nil || errors.Is(err, auth.ErrMissingCredentials) {
		cred, err = auth.CredentialFromRequest(a.mode, r)
	}
	if err != nil {
		return err
	}
	return a.verifier.Verify(cred)
}

// IsAuthMissing reports whether err means no credential was presented, as
// opposed to a bad one.
func IsAuthMissing(err error) bool {
	return errors.Is(err, auth.ErrMissingCredentials)
}

// IsUnauthorized reports whether err should be surfaced as an auth failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, auth.ErrMissingCredentials) || errors.Is(err, auth.ErrInvalidCredentials)
}
