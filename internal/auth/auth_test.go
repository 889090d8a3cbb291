package auth

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
)

func TestCredentialFromQuery(t *testing.T) {
	cases := []struct {
		name string
		mode config.AuthMode
		q    url.Values
		want string
	}{
		{"none ignores credentials", config.AuthModeNone, url.Values{"apiKey": {"x"}, "token": {"y"}}, ""},
		{"api_key prefers apiKey", config.AuthModeAPIKey, url.Values{"apiKey": {"a"}, "token": {"t"}}, "a"},
		{"api_key accepts token", config.AuthModeAPIKey, url.Values{"token": {"t"}}, "t"},
		{"jwt prefers token", config.AuthModeJWT, url.Values{"apiKey": {"a"}, "token": {"t"}}, "t"},
		{"jwt accepts apiKey", config.AuthModeJWT, url.Values{"apiKey": {"a"}}, "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := CredentialFromQuery(tc.mode, tc.q)
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if cred != tc.want {
				t.Fatalf("cred=%q, want %q", cred, tc.want)
			}
		})
	}

	if _, err := CredentialFromQuery(config.AuthModeAPIKey, url.Values{"apiKey": {"  "}}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v, want ErrMissingCredentials", err)
	}
	if _, err := CredentialFromQuery("oauth", url.Values{}); err == nil || errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v, want unsupported mode error", err)
	}
}

func TestCredentialFromRequest_HeadersBeforeQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/socket?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	cred, err := CredentialFromRequest(config.AuthModeJWT, r)
	if err != nil || cred != "from-header" {
		t.Fatalf("cred=%q err=%v, want from-header", cred, err)
	}

	r = httptest.NewRequest("GET", "/socket?apiKey=from-query", nil)
	cred, err = CredentialFromRequest(config.AuthModeAPIKey, r)
	if err != nil || cred != "from-query" {
		t.Fatalf("cred=%q err=%v, want from-query", cred, err)
	}

	r = httptest.NewRequest("GET", "/socket", nil)
	r.Header.Set("X-API-Key", "k")
	cred, err = CredentialFromRequest(config.AuthModeAPIKey, r)
	if err != nil || cred != "k" {
		t.Fatalf("cred=%q err=%v, want k", cred, err)
	}

	r = httptest.NewRequest("GET", "/socket", nil)
	if _, err := CredentialFromRequest(config.AuthModeAPIKey, r); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v, want ErrMissingCredentials", err)
	}
}

func TestCredentialFromAuthMessage(t *testing.T) {
	cred, err := CredentialFromAuthMessage(config.AuthModeAPIKey, "k", "")
	if err != nil || cred != "k" {
		t.Fatalf("cred=%q err=%v", cred, err)
	}
	if _, err := CredentialFromAuthMessage(config.AuthModeJWT, "", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v, want ErrMissingCredentials", err)
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "secret"}
	if err := v.Verify("secret"); err != nil {
		t.Fatalf("Verify(correct)=%v", err)
	}
	for _, bad := range []string{"", "Secret", "secret2"} {
		if err := v.Verify(bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Verify(%q)=%v, want ErrInvalidCredentials", bad, err)
		}
	}
	if err := (APIKeyVerifier{}).Verify("anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty expected key must reject, got %v", err)
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.Config{AuthMode: config.AuthModeAPIKey, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewVerifier(api_key): %v", err)
	}
	if err := v.Verify("k"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := NewVerifier(config.Config{AuthMode: config.AuthModeJWT, JWTSecret: "s"}); err != nil {
		t.Fatalf("NewVerifier(jwt): %v", err)
	}
	if _, err := NewVerifier(config.Config{AuthMode: config.AuthModeNone}); err == nil {
		t.Fatalf("NewVerifier(none) should not return a verifier")
	}
}
