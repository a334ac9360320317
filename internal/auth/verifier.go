package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier validates tokens against a remote JSON Web Key Set.
//
// The key set is fetched once at construction and cached; an unknown key id
// triggers a rate-limited refresh, so issuer key rotation is picked up without
// restarting the server. Signature algorithm is pinned to RS256 and the token
// issuer must appear in the configured allow-list.
type JWKSVerifier struct {
	keys     keyfunc.Keyfunc
	issuers  map[string]struct{}
	audience string
}

// compile-time interface check
var _ Verifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier constructs a verifier backed by the key set published at
// jwksURL. The issuers slice is the allow-list of accepted issuer strings;
// audience is optional and, when non-empty, tokens minted for a different
// OAuth client are rejected. The context bounds the initial key fetch and the
// background refresh goroutine.
func NewJWKSVerifier(ctx context.Context, jwksURL string, issuers []string, audience string) (*JWKSVerifier, error) {
	if len(issuers) == 0 {
		return nil, fmt.Errorf("at least one accepted issuer is required")
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", jwksURL, err)
	}

	issuerSet := make(map[string]struct{}, len(issuers))
	for _, iss := range issuers {
		issuerSet[iss] = struct{}{}
	}

	return &JWKSVerifier{
		keys:     keys,
		issuers:  issuerSet,
		audience: audience,
	}, nil
}

// Verify parses and validates the token, returning its claims on success.
// Failures cover bad signatures, unknown signing keys, untrusted issuers,
// wrong audiences, and expired or not-yet-valid lifetimes.
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keys.Keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token verification failed: token is not valid")
	}

	// jwt.WithIssuer matches a single issuer, so the allow-list is checked here.
	if _, ok := v.issuers[claims.Issuer]; !ok {
		return nil, fmt.Errorf("token verification failed: issuer %q is not trusted", claims.Issuer)
	}

	return claims, nil
}
