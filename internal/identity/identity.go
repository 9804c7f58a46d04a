// Package identity verifies bearer tokens from the upstream identity
// provider.
//
// Tokens are HS256 JWTs signed with a shared secret. Verification yields
// the provider's stable subject and, when present, the user's email. This
// gate protects self-service account endpoints and is never combined with
// API-key metering.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Errors
var (
	ErrNotConfigured = errors.New("identity: no signing secret configured")
	ErrInvalidToken  = errors.New("identity: invalid token")
)

// Claims are the token claims the platform cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates identity tokens.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier creates a token verifier. An empty secret disables the gate;
// Verify then fails closed with ErrNotConfigured.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Enabled reports whether a signing secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses and validates a token string and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
