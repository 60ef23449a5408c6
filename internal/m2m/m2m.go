// Package m2m authenticates machine-to-machine callers presenting bearer
// tokens issued through the provider's client credentials grant.
package m2m

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alianzacap/jppr-front/internal/verifier"
)

var (
	// ErrMissingCredential covers an absent Authorization header, a
	// non-Bearer scheme, and an empty bearer value.
	ErrMissingCredential = errors.New("missing bearer credential")

	// ErrGrantTypeMismatch marks a token that validated but was not
	// issued on a client credentials grant. Interactive user tokens
	// must not reach machine endpoints.
	ErrGrantTypeMismatch = errors.New("token grant type not client_credentials")
)

// TokenVerifier validates a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (verifier.IdentityClaims, error)
}

// ExtractBearer pulls the bearer token out of the Authorization header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: no Authorization header", ErrMissingCredential)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: not a Bearer credential", ErrMissingCredential)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer value", ErrMissingCredential)
	}
	return token, nil
}

// Authenticator validates bearer requests for machine endpoints.
type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(v TokenVerifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// Authenticate extracts and validates the request's bearer token and
// enforces that it was issued to a machine client. Verification failures
// pass through unchanged so callers can distinguish invalid credentials
// from transient key retrieval errors.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (verifier.IdentityClaims, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return verifier.IdentityClaims{}, err
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return verifier.IdentityClaims{}, err
	}

	if !claims.GrantTypeClientCredentials() {
		return verifier.IdentityClaims{}, fmt.Errorf("%w: got %q", ErrGrantTypeMismatch, claims.GrantType)
	}
	return claims, nil
}
