package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxJWTLen bounds the work done on attacker-supplied tokens before any
// signature check.
const maxJWTLen = 8 * 1024

// SessionClaims are the claims accepted on signaling tokens. sid is required
// and identifies the issuing session.
type SessionClaims struct {
	jwt.RegisteredClaims
	SID string `json:"sid"`
}

// JWTVerifier accepts HS256 tokens carrying exp, iat and sid.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) JWTVerifier {
	return JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (v JWTVerifier) Verify(token string) error {
	_, err := v.VerifyAndExtractSID(token)
	return err
}

// VerifyAndExtractSID verifies token and returns its sid claim.
func (v JWTVerifier) VerifyAndExtractSID(token string) (string, error) {
	if token == "" || len(token) > maxJWTLen || len(v.secret) == 0 {
		return "", ErrInvalidCredentials
	}

	now := v.now
	if now == nil {
		now = time.Now
	}

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCredentials
	}
	if claims.IssuedAt == nil || claims.SID == "" {
		return "", ErrInvalidCredentials
	}
	return claims.SID, nil
}
