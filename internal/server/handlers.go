package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/identity"
	"github.com/alianzacap/jppr-front/internal/idp"
	"github.com/alianzacap/jppr-front/internal/jsonrpc"
	"github.com/alianzacap/jppr-front/internal/jsonwriter"
	"github.com/alianzacap/jppr-front/internal/log"
	"github.com/alianzacap/jppr-front/internal/m2m"
	"github.com/alianzacap/jppr-front/internal/state"
	"github.com/alianzacap/jppr-front/internal/verifier"
)

// SessionAuthority is the piece of the OAuth session provider the gateway
// handlers need. The session provider additionally exposes the token and
// registration endpoints as plain http.HandlerFuncs.
type SessionAuthority interface {
	ParseAuthRequest(ctx context.Context, r *http.Request) (string, state.AuthorizationRequest, error)
	Introspect(ctx context.Context, token string) (identity.Props, error)
	MetadataHandler(w http.ResponseWriter, r *http.Request)
	TokenHandler(w http.ResponseWriter, r *http.Request)
	RegisterHandler(w http.ResponseWriter, r *http.Request)
}

// CodeExchanger redirects users to the identity provider and trades
// authorization codes for tokens.
type CodeExchanger interface {
	AuthorizeURL(encodedState string) string
	ExchangeCode(ctx context.Context, code string) (idp.TokenResponse, error)
}

// SessionBinder turns an exchanged identity token into a gateway session.
type SessionBinder interface {
	BindSession(ctx context.Context, req state.AuthorizationRequest, idToken string) (string, error)
}

// MachineAuthenticator validates machine-to-machine bearer tokens.
type MachineAuthenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (verifier.IdentityClaims, error)
}

// GatewayHandlers holds the HTTP handlers that front the property tool server.
type GatewayHandlers struct {
	cfg     *config.Config
	idp     CodeExchanger
	binder  SessionBinder
	session SessionAuthority
	machine MachineAuthenticator
	tool    http.Handler
	version string
}

// NewGatewayHandlers wires the gateway's HTTP surface. Fields that a given
// auth mode does not use may be nil; the router only mounts the routes whose
// dependencies are present.
func NewGatewayHandlers(cfg *config.Config, exchanger CodeExchanger, binder SessionBinder, session SessionAuthority, machine MachineAuthenticator, tool http.Handler, version string) *GatewayHandlers {
	return &GatewayHandlers{
		cfg:     cfg,
		idp:     exchanger,
		binder:  binder,
		session: session,
		machine: machine,
		tool:    tool,
		version: version,
	}
}

// HealthHandler reports liveness plus enough shape for a client to discover
// which endpoints this deployment exposes.
func (h *GatewayHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{"/health", "/mcp"}
	if h.cfg.AuthMode.OAuthEnabled() {
		endpoints = append(endpoints, "/authorize", "/callback", "/token", "/register", "/.well-known/oauth-authorization-server")
	}
	if h.cfg.AuthMode.M2MEnabled() {
		endpoints = append(endpoints, "/mcp-m2m")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "jppr-front",
		"version":   h.version,
		"auth":      string(h.cfg.AuthMode),
		"endpoints": endpoints,
	})
}

// AuthorizeHandler validates the client's authorization request and
// redirects the browser to the upstream identity provider with the request
// captured in the state parameter.
func (h *GatewayHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("client_id") == "" {
		writeText(w, http.StatusBadRequest, "Missing client_id parameter")
		return
	}

	encoded, req, err := h.session.ParseAuthRequest(r.Context(), r)
	if err != nil {
		log.LogError("Authorize request rejected: %v", err)
		writeText(w, http.StatusBadRequest, "Invalid authorization request: "+err.Error())
		return
	}

	log.LogDebug("Redirecting client %s to identity provider", req.ClientID)
	http.Redirect(w, r, h.idp.AuthorizeURL(encoded), http.StatusFound)
}

// CallbackHandler receives the identity provider's redirect, exchanges the
// code, and completes the parked authorization request. Failures before the
// code exchange are the client's fault and return 400; failures after are
// ours or the provider's and return 500.
func (h *GatewayHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		desc := query.Get("error_description")
		log.LogWarn("Identity provider returned error: %s (%s)", errParam, desc)
		msg := "Authentication failed: " + errParam
		if desc != "" {
			msg += ": " + desc
		}
		writeText(w, http.StatusBadRequest, msg)
		return
	}

	req, err := state.Decode(query.Get("state"))
	if err != nil {
		log.LogError("Callback state rejected: %v", err)
		writeText(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	code := query.Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	tokens, err := h.idp.ExchangeCode(r.Context(), code)
	if err != nil {
		log.LogError("Code exchange failed: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to exchange authorization code")
		return
	}

	redirectTo, err := h.binder.BindSession(r.Context(), req, tokens.IDToken)
	if err != nil {
		log.LogError("Session binding failed: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to complete authorization")
		return
	}

	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// SessionAuthMiddleware guards the tool endpoint with gateway-issued session
// tokens. Auth failures are JSON-RPC error envelopes so MCP clients can
// surface them.
func (h *GatewayHandlers) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m2m.ExtractBearer(r)
		if err != nil {
			h.writeAuthChallenge(w)
			jsonrpc.WriteError(w, http.StatusUnauthorized, jsonrpc.NewError(jsonrpc.CredentialInvalid, "Missing or invalid bearer token"))
			return
		}

		props, err := h.session.Introspect(r.Context(), token)
		if err != nil {
			log.LogDebug("Session introspection failed: %v", err)
			h.writeAuthChallenge(w)
			jsonrpc.WriteError(w, http.StatusUnauthorized, jsonrpc.NewError(jsonrpc.CredentialInvalid, "Invalid or expired session token"))
			return
		}

		log.LogDebugWithFields("auth", "session authenticated", map[string]any{
			"subject": props.Subject,
			"user":    props.Label(),
		})
		next.ServeHTTP(w, r)
	})
}

// MachineAuthMiddleware guards an endpoint with machine-to-machine JWT
// validation against the trust domain.
func (h *GatewayHandlers) MachineAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.machine.Authenticate(r.Context(), r)
		if err != nil {
			h.writeMachineAuthError(w, err)
			return
		}

		log.LogDebugWithFields("auth", "machine authenticated", map[string]any{
			"subject": claims.Subject,
			"azp":     claims.AuthorizedParty,
		})
		next.ServeHTTP(w, r)
	})
}

func (h *GatewayHandlers) writeMachineAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, m2m.ErrGrantTypeMismatch):
		jsonrpc.WriteError(w, http.StatusForbidden, jsonrpc.NewError(jsonrpc.GrantTypeRejected, "Token was not issued through the client credentials grant"))
	case errors.Is(err, verifier.ErrKeyRetrieval):
		log.LogError("Machine auth key retrieval failed: %v", err)
		jsonrpc.WriteError(w, http.StatusInternalServerError, jsonrpc.NewStandardError(jsonrpc.InternalError))
	default:
		log.LogDebug("Machine auth rejected: %v", err)
		h.writeAuthChallenge(w)
		jsonrpc.WriteError(w, http.StatusUnauthorized, jsonrpc.NewError(jsonrpc.CredentialInvalid, "Missing or invalid bearer token"))
	}
}

// StaticBearerMiddleware guards the tool endpoint with a single shared token
// compared in constant time.
func (h *GatewayHandlers) StaticBearerMiddleware(next http.Handler) http.Handler {
	expected := []byte(h.cfg.BearerToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m2m.ExtractBearer(r)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			h.writeAuthChallenge(w)
			jsonrpc.WriteError(w, http.StatusUnauthorized, jsonrpc.NewError(jsonrpc.CredentialInvalid, "Missing or invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *GatewayHandlers) writeAuthChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="`+h.cfg.BaseURL+`/.well-known/oauth-authorization-server"`)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	if err := jsonwriter.WriteResponse(w, status, data); err != nil {
		log.LogError("Failed to write response: %v", err)
	}
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
