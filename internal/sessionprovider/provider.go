// Package sessionprovider implements the OAuth server surface the
// gateway presents to MCP clients: authorize request parsing, code
// issuance after upstream authentication, token exchange, dynamic client
// registration, and token introspection. Built on ory/fosite.
package sessionprovider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/crypto"
	"github.com/alianzacap/jppr-front/internal/identity"
	"github.com/alianzacap/jppr-front/internal/state"
	"github.com/alianzacap/jppr-front/internal/storage"
)

const (
	tokenTTL         = time.Hour
	authorizeCodeTTL = 10 * time.Minute
)

// ErrAuthorizationNotFound marks a callback whose pending authorize
// request is unknown: either it was already completed (codes are single
// use) or the gateway restarted in between.
var ErrAuthorizationNotFound = errors.New("authorization request not found or already completed")

// Provider wraps fosite and the storage backend.
type Provider struct {
	oauth2 fosite.OAuth2Provider
	store  *storage.Store
	issuer string
}

// New builds the provider. The JWT secret signs authorization codes and
// tokens via HMAC; when empty a random one is generated, which means
// issued tokens do not survive restarts.
func New(cfg *config.Config, store *storage.Store) (*Provider, error) {
	secret, err := jwtSecret(string(cfg.JWTSecret))
	if err != nil {
		return nil, err
	}

	fositeConfig := &compose.Config{
		AccessTokenLifespan:            tokenTTL,
		RefreshTokenLifespan:           tokenTTL * 2,
		AuthorizeCodeLifespan:          authorizeCodeTTL,
		TokenURL:                       cfg.BaseURL + "/token",
		ScopeStrategy:                  fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy:       fosite.DefaultAudienceMatchingStrategy,
		EnforcePKCEForPublicClients:    true,
		EnablePKCEPlainChallengeMethod: false,
	}

	oauth2 := compose.Compose(
		fositeConfig,
		store,
		&compose.CommonStrategy{
			CoreStrategy: compose.NewOAuth2HMACStrategy(fositeConfig, secret, nil),
		},
		crypto.ClientSecretHasher{},
		compose.OAuth2AuthorizeExplicitFactory,
		compose.OAuth2PKCEFactory,
		compose.OAuth2RefreshTokenGrantFactory,
		compose.OAuth2TokenIntrospectionFactory,
	)

	return &Provider{
		oauth2: oauth2,
		store:  store,
		issuer: cfg.BaseURL,
	}, nil
}

func jwtSecret(provided string) ([]byte, error) {
	if provided != "" {
		if len(provided) < 32 {
			return nil, fmt.Errorf("JWT secret must be at least 32 bytes, got %d", len(provided))
		}
		return []byte(provided), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate JWT secret: %w", err)
	}
	return secret, nil
}

// ParseAuthRequest validates an incoming authorize request, parks it for
// the callback leg, and returns the opaque state to carry upstream along
// with the captured request fields.
func (p *Provider) ParseAuthRequest(ctx context.Context, r *http.Request) (string, state.AuthorizationRequest, error) {
	ar, err := p.oauth2.NewAuthorizeRequest(ctx, r)
	if err != nil {
		return "", state.AuthorizationRequest{}, fmt.Errorf("parse authorize request: %w", err)
	}

	form := ar.GetRequestForm()
	req := state.AuthorizationRequest{
		ClientID:            ar.GetClient().GetID(),
		RedirectURI:         ar.GetRedirectURI().String(),
		Scope:               []string(ar.GetRequestedScopes()),
		State:               ar.GetState(),
		CodeChallenge:       form.Get("code_challenge"),
		CodeChallengeMethod: form.Get("code_challenge_method"),
	}
	if types := ar.GetResponseTypes(); len(types) > 0 {
		req.ResponseType = types[0]
	}

	encoded := state.Encode(req)
	p.store.StoreAuthorizeRequest(encoded, ar)
	return encoded, req, nil
}

// CompleteAuthorization mints the authorization code for a bound
// identity and returns the client redirect URL carrying it. Implements
// identity.SessionProvider.
func (p *Provider) CompleteAuthorization(ctx context.Context, req state.AuthorizationRequest, props identity.Props) (string, error) {
	ar, ok := p.store.ConsumeAuthorizeRequest(state.Encode(req))
	if !ok {
		return "", ErrAuthorizationNotFound
	}

	session := &Session{
		DefaultSession: &fosite.DefaultSession{
			Subject:  props.Subject,
			Username: props.Label(),
			ExpiresAt: map[fosite.TokenType]time.Time{
				fosite.AccessToken:  time.Now().Add(tokenTTL),
				fosite.RefreshToken: time.Now().Add(tokenTTL * 2),
			},
		},
		Props: props,
	}

	response, err := p.oauth2.NewAuthorizeResponse(ctx, ar, session)
	if err != nil {
		return "", fmt.Errorf("issue authorization code: %w", err)
	}

	redirect := *ar.GetRedirectURI()
	query := redirect.Query()
	for key, values := range response.GetParameters() {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	redirect.RawQuery = query.Encode()
	return redirect.String(), nil
}

// Introspect validates a gateway-issued access token and returns the
// identity bound to it. The session passed in is not populated by
// fosite; the real one is on the returned access requester.
func (p *Provider) Introspect(ctx context.Context, token string) (identity.Props, error) {
	session := &Session{DefaultSession: &fosite.DefaultSession{}}
	_, accessRequest, err := p.oauth2.IntrospectToken(ctx, token, fosite.AccessToken, session)
	if err != nil {
		return identity.Props{}, fmt.Errorf("introspect token: %w", err)
	}

	if accessRequest != nil {
		if reqSession, ok := accessRequest.GetSession().(*Session); ok {
			return reqSession.Props, nil
		}
	}
	return identity.Props{}, nil
}

// Metadata is the RFC 8414 authorization server metadata document.
func (p *Provider) Metadata() map[string]any {
	return map[string]any{
		"issuer":                                p.issuer,
		"authorization_endpoint":                p.issuer + "/authorize",
		"token_endpoint":                        p.issuer + "/token",
		"registration_endpoint":                 p.issuer + "/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
	}
}
