// Package verifier validates signed access tokens against the identity
// provider's published key set and the deployment's trust parameters.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/alianzacap/jppr-front/internal/config"
)

// keyRetrievalTimeout bounds JWKS fetches so verification never blocks
// indefinitely on the provider's key endpoint.
const keyRetrievalTimeout = 10 * time.Second

// Narrow failure kinds. Callers must be able to distinguish a bad token
// from a transient key-fetch failure: only ErrKeyRetrieval is retryable.
var (
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrTokenExpired     = errors.New("token expired")
	ErrKeyRetrieval     = errors.New("failed to retrieve signing keys")
)

// IdentityClaims is the normalized output of a successful validation.
// Subject is always present; GrantType distinguishes interactive
// (authorization_code) from machine (client_credentials) issuance.
type IdentityClaims struct {
	Subject         string
	Scope           string
	GrantType       string
	AuthorizedParty string
	Audience        []string
	Extra           map[string]any
}

// Verifier checks token signature, issuer, and audience against a cached
// key set fetched from the provider's well-known JWKS endpoint. The cache
// is shared across concurrent verifications and refreshed by the jwk
// library's own policy.
type Verifier struct {
	issuer   string
	audience string
	jwksURL  string
	cache    *jwk.Cache

	mu         sync.Mutex
	registered bool
}

// New creates a verifier for the given trust parameters. The JWKS URL is
// registered lazily on first use so construction never blocks on the
// network.
func New(ctx context.Context, trust config.Trust) (*Verifier, error) {
	httpClient := &http.Client{Timeout: keyRetrievalTimeout}
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("create JWKS cache: %w", err)
	}

	return &Verifier{
		issuer:   trust.Issuer(),
		audience: trust.Audience,
		jwksURL:  trust.JWKSURL(),
		cache:    cache,
	}, nil
}

// ensureRegistered registers the JWKS URL on first use. Only success is
// memoized: a failed fetch at the key endpoint must stay retryable on the
// next verification, not poison the verifier until restart.
func (v *Verifier) ensureRegistered(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.registered {
		return nil
	}

	registerCtx, cancel := context.WithTimeout(ctx, keyRetrievalTimeout)
	defer cancel()

	if v.cache.IsRegistered(registerCtx, v.jwksURL) {
		// A previous attempt registered the URL but its initial fetch
		// failed. Force a fetch now rather than waiting out the cache's
		// background refresh interval.
		if _, err := v.cache.Refresh(registerCtx, v.jwksURL); err != nil {
			return err
		}
	} else if err := v.cache.Register(registerCtx, v.jwksURL); err != nil {
		return err
	}

	v.registered = true
	return nil
}

func (v *Verifier) keyForToken(ctx context.Context, token *jwt.Token) (any, error) {
	if err := v.ensureRegistered(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("%w: unexpected signing method %v", ErrSignatureInvalid, token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: token header missing kid", ErrSignatureInvalid)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, keyRetrievalTimeout)
	defer cancel()
	keySet, err := v.cache.Lookup(lookupCtx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: key id %s not in key set", ErrSignatureInvalid, kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("%w: export key: %v", ErrKeyRetrieval, err)
	}
	return rawKey, nil
}

// Verify validates the token and returns its normalized claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (IdentityClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return v.keyForToken(ctx, token)
	})
	if err != nil {
		return IdentityClaims{}, classifyParseError(err)
	}
	if !token.Valid {
		return IdentityClaims{}, ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return IdentityClaims{}, fmt.Errorf("%w: unexpected claims type", ErrSignatureInvalid)
	}

	if err := v.validateClaims(claims); err != nil {
		return IdentityClaims{}, err
	}
	return normalizeClaims(claims)
}

// classifyParseError maps jwt parse failures onto the narrow error kinds,
// preserving the retryable key-retrieval class when the keyfunc failed.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeyRetrieval),
		errors.Is(err, ErrSignatureInvalid):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

func (v *Verifier) validateClaims(claims jwt.MapClaims) error {
	issuer, err := claims.GetIssuer()
	if err != nil || issuer != v.issuer {
		return fmt.Errorf("%w: got %q, want %q", ErrIssuerMismatch, issuer, v.issuer)
	}

	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
		}
		found := false
		for _, aud := range audiences {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: got %v, want %q", ErrAudienceMismatch, []string(audiences), v.audience)
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Before(time.Now()) {
		return ErrTokenExpired
	}

	return nil
}

// normalizeClaims converts the raw claim map into IdentityClaims. Subject
// presence is an invariant of successful validation.
func normalizeClaims(claims jwt.MapClaims) (IdentityClaims, error) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return IdentityClaims{}, fmt.Errorf("%w: missing sub claim", ErrSignatureInvalid)
	}

	out := IdentityClaims{
		Subject: subject,
		Extra:   map[string]any{},
	}

	if scope, ok := claims["scope"].(string); ok {
		out.Scope = scope
	}
	if gty, ok := claims["gty"].(string); ok {
		out.GrantType = gty
	}
	if azp, ok := claims["azp"].(string); ok {
		out.AuthorizedParty = azp
	}
	if audiences, err := claims.GetAudience(); err == nil {
		out.Audience = audiences
	}

	known := map[string]bool{
		"sub": true, "scope": true, "gty": true, "azp": true,
		"aud": true, "iss": true, "exp": true, "iat": true, "nbf": true,
	}
	for k, val := range claims {
		if !known[k] {
			out.Extra[k] = val
		}
	}

	return out, nil
}

// GrantTypeClientCredentials reports whether the claims were issued on a
// machine-credentials grant. The provider historically spelled the grant
// with a hyphen, so both forms are accepted.
func (c IdentityClaims) GrantTypeClientCredentials() bool {
	gty := strings.ReplaceAll(c.GrantType, "-", "_")
	return gty == "client_credentials"
}
