/*
Package auth verifies the single-sign-on bearer tokens presented by clients and
decides which verified identities are allowed into rooms.

The verification side validates RS256 signatures against the issuer's published
key set; the authorization side is a pluggable predicate over the verified
identity.
*/
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the per-connection identity derived from verified claims.
// Email is the unique key used for addressing within a room.
type Identity struct {
	Email         string
	EmailVerified bool
}

// Claims is the payload of a verified single-sign-on token.
// The registered claims carry the issuer, audience, subject, and lifetime.
type Claims struct {
	jwt.RegisteredClaims

	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Identity derives the addressing identity from the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
	}
}

// Verifier validates an opaque bearer token and returns its verified claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}
