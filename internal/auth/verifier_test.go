package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID  = "test-key-1"
	testIssuer = "https://issuer.example.com"
)

// newKeyServer generates a signing key and serves its public half as a JWKS.
func newKeyServer(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	return key, server
}

// signToken mints an RS256 token with the given claims and key id.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            testIssuer,
		"sub":            "subject-123",
		"aud":            "client-abc",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"iat":            time.Now().Unix(),
		"email":          "a@x.com",
		"email_verified": true,
		"name":           "Person A",
		"picture":        "https://pics.example.com/a.png",
	}
}

func TestVerifyValidToken(t *testing.T) {
	key, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	tokenString := signToken(t, key, testKeyID, baseClaims())

	claims, err := verifier.Verify(context.Background(), tokenString)
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "Person A", claims.Name)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, "subject-123", claims.Subject)

	identity := claims.Identity()
	assert.Equal(t, "a@x.com", identity.Email)
	assert.True(t, identity.EmailVerified)
}

func TestVerifyUnverifiedEmailPassesThrough(t *testing.T) {
	// Verification only checks the token is genuine; the email_verified
	// policy decision belongs to the session.
	key, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	claims := baseClaims()
	claims["email_verified"] = false
	tokenString := signToken(t, key, testKeyID, claims)

	verified, err := verifier.Verify(context.Background(), tokenString)
	require.NoError(t, err)
	assert.False(t, verified.EmailVerified)
}

func TestVerifyRejectsUntrustedIssuer(t *testing.T) {
	key, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	claims := baseClaims()
	claims["iss"] = "https://evil.example.com"
	tokenString := signToken(t, key, testKeyID, claims)

	_, err = verifier.Verify(context.Background(), tokenString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not trusted")
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	tokenString := signToken(t, key, testKeyID, claims)

	_, err = verifier.Verify(context.Background(), tokenString)
	require.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	// Signed by a key the JWKS has never published.
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokenString := signToken(t, rogue, "rogue-key", baseClaims())

	_, err = verifier.Verify(context.Background(), tokenString)
	require.Error(t, err)
}

func TestVerifyRejectsWrongSignature(t *testing.T) {
	_, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "")
	require.NoError(t, err)

	// Correct key id, wrong private key: the signature check must fail.
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokenString := signToken(t, rogue, testKeyID, baseClaims())

	_, err = verifier.Verify(context.Background(), tokenString)
	require.Error(t, err)
}

func TestVerifyAudienceCheck(t *testing.T) {
	key, server := newKeyServer(t)

	verifier, err := NewJWKSVerifier(context.Background(), server.URL, []string{testIssuer}, "client-abc")
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signToken(t, key, testKeyID, baseClaims()))
	require.NoError(t, err)

	claims := baseClaims()
	claims["aud"] = "someone-else"
	_, err = verifier.Verify(context.Background(), signToken(t, key, testKeyID, claims))
	require.Error(t, err)
}

func TestNewJWKSVerifierRequiresIssuers(t *testing.T) {
	_, server := newKeyServer(t)

	_, err := NewJWKSVerifier(context.Background(), server.URL, nil, "")
	require.Error(t, err)
}
