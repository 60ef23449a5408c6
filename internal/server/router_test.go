package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/verifier"
)

func machineClaims() verifier.IdentityClaims {
	return verifier.IdentityClaims{Subject: "svc@clients", GrantType: "client_credentials"}
}

func newRouter(mode config.AuthKind, session *stubSession, machine *stubMachine) http.Handler {
	if session == nil {
		session = &stubSession{}
	}
	h := NewGatewayHandlers(testConfig(mode), &stubExchanger{}, &stubBinder{}, session, machine, okTool(), "1.2.3")
	return NewRouter(h)
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouterHealthAlwaysMounted(t *testing.T) {
	for _, mode := range []config.AuthKind{
		config.AuthKindNone, config.AuthKindBearer, config.AuthKindOAuth,
		config.AuthKindM2M, config.AuthKindOAuthM2M,
	} {
		t.Run(string(mode), func(t *testing.T) {
			rec := get(t, newRouter(mode, nil, &stubMachine{}), "/health")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRouterOAuthRoutes(t *testing.T) {
	router := newRouter(config.AuthKindOAuth, &stubSession{}, nil)

	rec := get(t, router, "/token")
	assert.Equal(t, "token-endpoint", rec.Body.String())

	rec = get(t, router, "/register")
	assert.Equal(t, "register-endpoint", rec.Body.String())

	rec = get(t, router, "/.well-known/oauth-authorization-server")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway.example.com")

	rec = get(t, router, "/authorize")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterOAuthRoutesAbsentInOtherModes(t *testing.T) {
	router := newRouter(config.AuthKindNone, nil, nil)

	for _, path := range []string{"/authorize", "/callback", "/token", "/register", "/.well-known/oauth-authorization-server"} {
		rec := get(t, router, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestRouterToolEndpointPerMode(t *testing.T) {
	t.Run("none is open", func(t *testing.T) {
		rec := get(t, newRouter(config.AuthKindNone, nil, nil), "/mcp")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tool-ok", rec.Body.String())
	})

	t.Run("oauth requires session token", func(t *testing.T) {
		rec := get(t, newRouter(config.AuthKindOAuth, &stubSession{}, nil), "/mcp")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer requires static token", func(t *testing.T) {
		router := newRouter(config.AuthKindBearer, nil, nil)

		rec := get(t, router, "/mcp")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer static-secret-token")
		authed := httptest.NewRecorder()
		router.ServeHTTP(authed, req)
		assert.Equal(t, http.StatusOK, authed.Code)
	})

	t.Run("m2m guards both endpoints", func(t *testing.T) {
		machine := &stubMachine{claims: machineClaims()}
		router := newRouter(config.AuthKindM2M, nil, machine)

		for _, path := range []string{"/mcp", "/mcp-m2m"} {
			rec := get(t, router, path)
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})

	t.Run("m2m endpoint absent without m2m", func(t *testing.T) {
		rec := get(t, newRouter(config.AuthKindBearer, nil, nil), "/mcp-m2m")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouterUnknownPath(t *testing.T) {
	rec := get(t, newRouter(config.AuthKindNone, nil, nil), "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newRouter(config.AuthKindOAuth, &stubSession{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://client.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"callback leg", "code=SplxlOBeZQQYbYS6WxSbIA&state=eyJjbGllbnRJZCI6ImFiYyJ9", "code=%5Bredacted%5D&state=%5Bredacted%5D"},
		{"client secret", "client_id=abc&client_secret=hunter2", "client_id=abc&client_secret=%5Bredacted%5D"},
		{"case insensitive", "Code=xyz", "Code=%5Bredacted%5D"},
		{"benign params pass through", "client_id=abc&scope=read", "client_id=abc&scope=read"},
		{"unparseable dropped", "a=%zz", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeQuery(tt.raw))
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	wrapped := NewRecoverMiddleware("test")(panicky)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
