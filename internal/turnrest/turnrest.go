// Package turnrest mints short-lived TURN credentials that coturn accepts
// with `use-auth-secret` / `static-auth-secret`.
//
//	username   = <unix_expiry>:<prefix>:<subject>
//	credential = base64(hmac_sha1(shared_secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
)

var ErrDisabled = errors.New("turnrest: shared secret not configured")

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	prefix string

	now   func() time.Time
	newID func() string
}

type Option func(*Issuer)

// WithClock overrides the clock used to compute expiry.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithSubjectSource overrides how subjects are picked when Issue is called
// without one.
func WithSubjectSource(newID func() string) Option {
	return func(i *Issuer) { i.newID = newID }
}

func NewIssuer(cfg config.TurnRESTConfig, opts ...Option) (*Issuer, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if cfg.TTLSeconds <= 0 {
		return nil, fmt.Errorf("turnrest: ttl must be > 0, got %d", cfg.TTLSeconds)
	}
	if cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, fmt.Errorf("turnrest: invalid username prefix %q", cfg.UsernamePrefix)
	}
	i := &Issuer{
		secret: []byte(cfg.SharedSecret),
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		prefix: cfg.UsernamePrefix,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns credentials for subject. An empty subject gets a random one.
func (i *Issuer) Issue(subject string) (Credentials, error) {
	if subject == "" {
		subject = i.newID()
	}
	if strings.Contains(subject, ":") {
		return Credentials{}, fmt.Errorf("turnrest: subject %q must not contain ':'", subject)
	}
	expires := i.now().UTC().Add(i.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), i.prefix, subject)
	return Credentials{
		Username:   username,
		Credential: Sign(i.secret, username),
		Expires:    expires,
	}, nil
}

// Sign computes the coturn credential for username.
func Sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
