package server

import (
	"net/http"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/jsonwriter"
)

// NewRouter mounts the gateway's routes for the configured auth mode and
// wraps them with the shared middleware stack.
func NewRouter(h *GatewayHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.HealthHandler)

	if h.cfg.AuthMode.OAuthEnabled() {
		mux.HandleFunc("/authorize", h.AuthorizeHandler)
		mux.HandleFunc("/callback", h.CallbackHandler)
		mux.HandleFunc("/token", h.session.TokenHandler)
		mux.HandleFunc("/register", h.session.RegisterHandler)
		mux.HandleFunc("/.well-known/oauth-authorization-server", h.session.MetadataHandler)
	}

	mux.Handle("/mcp", h.toolHandler())
	if h.cfg.AuthMode.M2MEnabled() {
		mux.Handle("/mcp-m2m", h.MachineAuthMiddleware(h.tool))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})

	return ChainMiddleware(mux,
		NewCORSMiddleware(nil),
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	)
}

// toolHandler picks the auth guard for the primary tool endpoint.
func (h *GatewayHandlers) toolHandler() http.Handler {
	switch h.cfg.AuthMode {
	case config.AuthKindOAuth, config.AuthKindOAuthM2M:
		return h.SessionAuthMiddleware(h.tool)
	case config.AuthKindM2M:
		return h.MachineAuthMiddleware(h.tool)
	case config.AuthKindBearer:
		return h.StaticBearerMiddleware(h.tool)
	default:
		return h.tool
	}
}
