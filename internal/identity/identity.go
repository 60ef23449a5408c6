// Package identity turns the provider's ID token into session properties
// and binds them into an authorized session via the session provider.
package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alianzacap/jppr-front/internal/state"
)

// ErrMalformedIdentityToken marks an ID token whose payload segment
// cannot be decoded. The token arrived over the exchange leg of a flow
// the gateway itself initiated, so signature verification is the
// provider's responsibility, not ours; structure still has to hold.
var ErrMalformedIdentityToken = errors.New("malformed identity token")

// Props are the session properties bound to an authorized session.
type Props struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Subject string `json:"sub"`
}

// Label is the human-readable tag for the session, preferring the
// display name over the email address.
func (p Props) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// ExtractIdentity decodes the payload segment of an ID token without
// verifying its signature and returns the identity properties. The
// subject claim is required; name falls back to email when absent.
func ExtractIdentity(idToken string) (Props, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return Props{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedIdentityToken, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Props{}, fmt.Errorf("%w: decode payload: %v", ErrMalformedIdentityToken, err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Props{}, fmt.Errorf("%w: parse payload: %v", ErrMalformedIdentityToken, err)
	}
	if claims.Subject == "" {
		return Props{}, fmt.Errorf("%w: missing sub claim", ErrMalformedIdentityToken)
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}

	return Props{
		Email:   claims.Email,
		Name:    name,
		Subject: claims.Subject,
	}, nil
}

// SessionProvider completes a pending authorization request for a bound
// identity and returns the client redirect URL carrying the issued code.
type SessionProvider interface {
	CompleteAuthorization(ctx context.Context, req state.AuthorizationRequest, props Props) (string, error)
}

// Binder ties extracted identities to pending authorization requests.
type Binder struct {
	provider SessionProvider
}

func NewBinder(provider SessionProvider) *Binder {
	return &Binder{provider: provider}
}

// BindSession extracts the identity from the ID token and completes the
// authorization request against the session provider.
func (b *Binder) BindSession(ctx context.Context, req state.AuthorizationRequest, idToken string) (string, error) {
	props, err := ExtractIdentity(idToken)
	if err != nil {
		return "", err
	}

	redirectTo, err := b.provider.CompleteAuthorization(ctx, req, props)
	if err != nil {
		return "", fmt.Errorf("complete authorization for %s: %w", props.Subject, err)
	}
	return redirectTo, nil
}
