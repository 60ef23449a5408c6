package verifier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://tenant.auth0.com/"
	testAudience = "https://api.example.com"
	testKeyID    = "test-key-1"
)

type verifierFixture struct {
	verifier *Verifier
	key      *rsa.PrivateKey
	jwks     *httptest.Server
	healthy  atomic.Bool
}

func newFixture(t *testing.T) *verifierFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.Import(key.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	f := &verifierFixture{key: key}
	f.healthy.Store(true)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(set))
	}))
	t.Cleanup(jwks.Close)

	cache, err := jwk.NewCache(t.Context(), httprc.NewClient())
	require.NoError(t, err)

	f.jwks = jwks
	f.verifier = &Verifier{
		issuer:   testIssuer,
		audience: testAudience,
		jwksURL:  jwks.URL,
		cache:    cache,
	}
	return f
}

func (f *verifierFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "svc1",
		"gty":   "client-credentials",
		"azp":   "client1",
		"scope": "read:properties",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	f := newFixture(t)
	token := f.sign(t, baseClaims())

	claims, err := f.verifier.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "svc1", claims.Subject)
	assert.Equal(t, "client-credentials", claims.GrantType)
	assert.Equal(t, "client1", claims.AuthorizedParty)
	assert.Equal(t, "read:properties", claims.Scope)
	assert.Equal(t, []string{testAudience}, claims.Audience)
	assert.True(t, claims.GrantTypeClientCredentials())
}

func TestVerifyWrongIssuer(t *testing.T) {
	f := newFixture(t)
	claims := baseClaims()
	claims["iss"] = "https://evil.example.com/"

	_, err := f.verifier.Verify(context.Background(), f.sign(t, claims))
	require.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestVerifyWrongAudience(t *testing.T) {
	f := newFixture(t)
	claims := baseClaims()
	claims["aud"] = "https://other-api.example.com"

	_, err := f.verifier.Verify(context.Background(), f.sign(t, claims))
	require.ErrorIs(t, err, ErrAudienceMismatch)
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := f.verifier.Verify(context.Background(), f.sign(t, claims))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyBadSignature(t *testing.T) {
	f := newFixture(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims())
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(otherKey)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), signed)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyUnknownKeyID(t *testing.T) {
	f := newFixture(t)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims())
	token.Header["kid"] = "unknown-kid"
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), signed)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyMissingSubject(t *testing.T) {
	f := newFixture(t)
	claims := baseClaims()
	delete(claims, "sub")

	_, err := f.verifier.Verify(context.Background(), f.sign(t, claims))
	require.Error(t, err)
}

func TestVerifyGarbageToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Verify(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyKeyEndpointDown(t *testing.T) {
	f := newFixture(t)
	f.jwks.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := f.verifier.Verify(ctx, f.sign(t, baseClaims()))
	require.ErrorIs(t, err, ErrKeyRetrieval)
}

// A key endpoint outage at first use must not poison the verifier: the
// next verification after the endpoint recovers has to succeed.
func TestVerifyRecoversAfterKeyEndpointOutage(t *testing.T) {
	f := newFixture(t)
	f.healthy.Store(false)
	token := f.sign(t, baseClaims())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.verifier.Verify(ctx, token)
	require.ErrorIs(t, err, ErrKeyRetrieval)

	f.healthy.Store(true)
	claims, err := f.verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "svc1", claims.Subject)
}

func TestGrantTypeNormalization(t *testing.T) {
	assert.True(t, IdentityClaims{GrantType: "client_credentials"}.GrantTypeClientCredentials())
	assert.True(t, IdentityClaims{GrantType: "client-credentials"}.GrantTypeClientCredentials())
	assert.False(t, IdentityClaims{GrantType: "authorization_code"}.GrantTypeClientCredentials())
	assert.False(t, IdentityClaims{GrantType: ""}.GrantTypeClientCredentials())
}
