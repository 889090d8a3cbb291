// Package auth gates access to the signaling transport. It decides whether a
// client may open a connection at all; it says nothing about which user ids
// that client registers under.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Verifier interface {
	Verify(credential string) error
}

// NewVerifier returns the verifier for cfg.AuthMode. AuthModeNone has no
// verifier; callers check the mode first.
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// CredentialFromQuery reads ?apiKey= or ?token=, preferring the one that
// matches mode. AuthModeNone yields an empty credential and no error.
func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	return pick(mode, q.Get("apiKey"), q.Get("token"))
}

// CredentialFromRequest prefers headers (X-API-Key, Authorization: Bearer)
// and falls back to the query string.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	bearer := ""
	if h := strings.TrimSpace(r.Header.Get("Authorization")); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		bearer = strings.TrimSpace(h[7:])
	}
	if cred, err := pick(mode, r.Header.Get("X-API-Key"), bearer); err == nil || !errors.Is(err, ErrMissingCredentials) {
		return cred, err
	}
	return CredentialFromQuery(mode, r.URL.Query())
}

// CredentialFromAuthMessage extracts the credential from an in-band
// {"type":"auth"} message.
func CredentialFromAuthMessage(mode config.AuthMode, apiKey, token string) (string, error) {
	return pick(mode, apiKey, token)
}

func pick(mode config.AuthMode, apiKey, token string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	token = strings.TrimSpace(token)

	var first, second string
	switch mode {
	case config.AuthModeNone:
		return "", nil
	case config.AuthModeAPIKey:
		first, second = apiKey, token
	case config.AuthModeJWT:
		first, second = token, apiKey
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
	if first != "" {
		return first, nil
	}
	if second != "" {
		return second, nil
	}
	return "", ErrMissingCredentials
}
