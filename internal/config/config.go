// Package config loads the gateway configuration from the environment.
// All values are read once at process start and are immutable afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// AuthKind selects the authentication strategy for the gateway.
type AuthKind string

const (
	AuthKindOAuth    AuthKind = "oauth"
	AuthKindM2M      AuthKind = "m2m"
	AuthKindOAuthM2M AuthKind = "oauth+m2m"
	AuthKindBearer   AuthKind = "bearer"
	AuthKindNone     AuthKind = "none"
)

// OAuthEnabled reports whether the interactive authorization-code
// routes should be served.
func (k AuthKind) OAuthEnabled() bool {
	return k == AuthKindOAuth || k == AuthKindOAuthM2M
}

// M2MEnabled reports whether the machine route should be served.
func (k AuthKind) M2MEnabled() bool {
	return k == AuthKindM2M || k == AuthKindOAuthM2M
}

// ExchangeStyle selects the upstream token-endpoint protocol.
type ExchangeStyle string

const (
	// ExchangeStyleJSON posts a JSON body carrying the client credentials
	// and supports an audience parameter (Auth0-style domains).
	ExchangeStyleJSON ExchangeStyle = "json"
	// ExchangeStyleForm posts a form-encoded body with HTTP Basic client
	// authentication (generic OAuth providers).
	ExchangeStyleForm ExchangeStyle = "form"
)

// Trust holds the per-deployment identity-provider parameters.
// Immutable for the process lifetime.
type Trust struct {
	Domain        string
	ClientID      string
	ClientSecret  Secret
	Audience      string
	Scope         string
	ExchangeStyle ExchangeStyle
}

// Issuer returns the token issuer URL the provider embeds in its tokens.
// Auth0 issues with a trailing slash.
func (t Trust) Issuer() string {
	return "https://" + t.Domain + "/"
}

// JWKSURL returns the provider's published key-set endpoint.
func (t Trust) JWKSURL() string {
	return "https://" + t.Domain + "/.well-known/jwks.json"
}

// AuthorizeEndpoint returns the provider's hosted authorization page.
func (t Trust) AuthorizeEndpoint() string {
	return "https://" + t.Domain + "/authorize"
}

// TokenEndpoint returns the provider's code-exchange endpoint.
func (t Trust) TokenEndpoint() string {
	return "https://" + t.Domain + "/oauth/token"
}

// StorageKind selects the client-registry backend.
type StorageKind string

const (
	StorageKindMemory StorageKind = "memory"
	StorageKindRedis  StorageKind = "redis"
)

// Config is the full gateway configuration.
type Config struct {
	Addr        string
	BaseURL     string
	AuthMode    AuthKind
	Trust       Trust
	JWTSecret   Secret
	BearerToken Secret
	Storage     StorageKind
	RedisAddr   string
	MIPRBaseURL string
}

// CallbackURL returns the redirect URI registered with the identity
// provider for this deployment.
func (c Config) CallbackURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/callback"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FromEnv reads and validates the configuration from the environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:        envOr("JPPR_ADDR", ":8080"),
		BaseURL:     envOr("JPPR_BASE_URL", "http://localhost:8080"),
		AuthMode:    AuthKind(envOr("JPPR_AUTH_MODE", string(AuthKindNone))),
		JWTSecret:   Secret(os.Getenv("JWT_SECRET")),
		BearerToken: Secret(os.Getenv("BEARER_TOKEN")),
		Storage:     StorageKind(envOr("STORAGE", string(StorageKindMemory))),
		RedisAddr:   envOr("REDIS_ADDR", "localhost:6379"),
		MIPRBaseURL: envOr("MIPR_BASE_URL", "https://gis.jp.pr.gov"),
		Trust: Trust{
			Domain:        os.Getenv("IDP_DOMAIN"),
			ClientID:      os.Getenv("IDP_CLIENT_ID"),
			ClientSecret:  Secret(os.Getenv("IDP_CLIENT_SECRET")),
			Audience:      os.Getenv("IDP_AUDIENCE"),
			Scope:         envOr("IDP_SCOPE", "openid profile email"),
			ExchangeStyle: ExchangeStyle(envOr("IDP_EXCHANGE_STYLE", string(ExchangeStyleJSON))),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks mode-dependent requirements.
func (c Config) Validate() error {
	switch c.AuthMode {
	case AuthKindOAuth, AuthKindM2M, AuthKindOAuthM2M, AuthKindBearer, AuthKindNone:
	default:
		return fmt.Errorf("invalid JPPR_AUTH_MODE: %q", c.AuthMode)
	}

	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid JPPR_BASE_URL: %w", err)
	}

	if c.AuthMode.OAuthEnabled() || c.AuthMode.M2MEnabled() {
		if c.Trust.Domain == "" {
			return fmt.Errorf("IDP_DOMAIN is required for auth mode %q", c.AuthMode)
		}
	}
	if c.AuthMode.OAuthEnabled() {
		if c.Trust.ClientID == "" {
			return fmt.Errorf("IDP_CLIENT_ID is required for auth mode %q", c.AuthMode)
		}
		if c.Trust.ClientSecret == "" {
			return fmt.Errorf("IDP_CLIENT_SECRET is required for auth mode %q", c.AuthMode)
		}
	}
	if c.AuthMode.M2MEnabled() && c.Trust.Audience == "" {
		return fmt.Errorf("IDP_AUDIENCE is required for auth mode %q", c.AuthMode)
	}
	if c.AuthMode == AuthKindBearer && c.BearerToken == "" {
		return fmt.Errorf("BEARER_TOKEN is required for auth mode %q", c.AuthMode)
	}

	switch c.Trust.ExchangeStyle {
	case ExchangeStyleJSON, ExchangeStyleForm:
	default:
		return fmt.Errorf("invalid IDP_EXCHANGE_STYLE: %q", c.Trust.ExchangeStyle)
	}

	switch c.Storage {
	case StorageKindMemory, StorageKindRedis:
	default:
		return fmt.Errorf("invalid STORAGE: %q", c.Storage)
	}

	return nil
}
