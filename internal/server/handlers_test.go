package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/identity"
	"github.com/alianzacap/jppr-front/internal/idp"
	"github.com/alianzacap/jppr-front/internal/m2m"
	"github.com/alianzacap/jppr-front/internal/state"
	"github.com/alianzacap/jppr-front/internal/verifier"
)

type stubExchanger struct {
	tokens        idp.TokenResponse
	exchangeErr   error
	exchangeCalls int
	lastCode      string
}

func (s *stubExchanger) AuthorizeURL(encodedState string) string {
	return "https://idp.example.com/authorize?state=" + encodedState
}

func (s *stubExchanger) ExchangeCode(_ context.Context, code string) (idp.TokenResponse, error) {
	s.exchangeCalls++
	s.lastCode = code
	return s.tokens, s.exchangeErr
}

type stubBinder struct {
	redirect string
	err      error
	calls    int
	gotReq   state.AuthorizationRequest
	gotToken string
}

func (s *stubBinder) BindSession(_ context.Context, req state.AuthorizationRequest, idToken string) (string, error) {
	s.calls++
	s.gotReq = req
	s.gotToken = idToken
	return s.redirect, s.err
}

type stubSession struct {
	parseEncoded  string
	parseReq      state.AuthorizationRequest
	parseErr      error
	props         identity.Props
	introspectErr error
	gotToken      string
}

func (s *stubSession) ParseAuthRequest(_ context.Context, _ *http.Request) (string, state.AuthorizationRequest, error) {
	return s.parseEncoded, s.parseReq, s.parseErr
}

func (s *stubSession) Introspect(_ context.Context, token string) (identity.Props, error) {
	s.gotToken = token
	return s.props, s.introspectErr
}

func (s *stubSession) MetadataHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"issuer":"https://gateway.example.com"}`)
}

func (s *stubSession) TokenHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "token-endpoint")
}

func (s *stubSession) RegisterHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, "register-endpoint")
}

type stubMachine struct {
	claims verifier.IdentityClaims
	err    error
}

func (s *stubMachine) Authenticate(_ context.Context, _ *http.Request) (verifier.IdentityClaims, error) {
	return s.claims, s.err
}

func okTool() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "tool-ok")
	})
}

func testConfig(mode config.AuthKind) *config.Config {
	return &config.Config{
		Addr:        ":8080",
		BaseURL:     "https://gateway.example.com",
		AuthMode:    mode,
		BearerToken: "static-secret-token",
	}
}

func newHandlers(mode config.AuthKind, exch *stubExchanger, binder *stubBinder, session *stubSession, machine *stubMachine) *GatewayHandlers {
	return NewGatewayHandlers(testConfig(mode), exch, binder, session, machine, okTool(), "1.2.3")
}

func TestHealthHandler(t *testing.T) {
	h := newHandlers(config.AuthKindOAuthM2M, nil, nil, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status    string   `json:"status"`
		Service   string   `json:"service"`
		Version   string   `json:"version"`
		Auth      string   `json:"auth"`
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "jppr-front", body.Service)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "oauth+m2m", body.Auth)
	assert.Contains(t, body.Endpoints, "/authorize")
	assert.Contains(t, body.Endpoints, "/mcp-m2m")
}

func TestHealthHandlerNoneMode(t *testing.T) {
	h := newHandlers(config.AuthKindNone, nil, nil, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body.Endpoints, "/authorize")
	assert.NotContains(t, body.Endpoints, "/mcp-m2m")
	assert.Contains(t, body.Endpoints, "/mcp")
}

func TestAuthorizeHandlerMissingClientID(t *testing.T) {
	h := newHandlers(config.AuthKindOAuth, &stubExchanger{}, nil, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.AuthorizeHandler(rec, httptest.NewRequest(http.MethodGet, "/authorize?response_type=code", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "client_id")
}

func TestAuthorizeHandlerParseFailure(t *testing.T) {
	session := &stubSession{parseErr: errors.New("unknown client")}
	h := newHandlers(config.AuthKindOAuth, &stubExchanger{}, nil, session, nil)

	rec := httptest.NewRecorder()
	h.AuthorizeHandler(rec, httptest.NewRequest(http.MethodGet, "/authorize?client_id=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid authorization request")
}

func TestAuthorizeHandlerRedirects(t *testing.T) {
	session := &stubSession{
		parseEncoded: "opaque-state",
		parseReq:     state.AuthorizationRequest{ClientID: "abc"},
	}
	h := newHandlers(config.AuthKindOAuth, &stubExchanger{}, nil, session, nil)

	rec := httptest.NewRecorder()
	h.AuthorizeHandler(rec, httptest.NewRequest(http.MethodGet, "/authorize?client_id=abc", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/authorize?state=opaque-state", rec.Header().Get("Location"))
}

func TestCallbackHandlerProviderError(t *testing.T) {
	exch := &stubExchanger{}
	binder := &stubBinder{}
	h := newHandlers(config.AuthKindOAuth, exch, binder, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet,
		"/callback?error=access_denied&error_description=user+declined", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied")
	assert.Contains(t, rec.Body.String(), "user declined")
	assert.Zero(t, exch.exchangeCalls, "provider error must short-circuit before the code exchange")
	assert.Zero(t, binder.calls)
}

func TestCallbackHandlerMalformedState(t *testing.T) {
	exch := &stubExchanger{}
	h := newHandlers(config.AuthKindOAuth, exch, &stubBinder{}, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz&state=%21%21not-base64", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid state")
	assert.Zero(t, exch.exchangeCalls)
}

func TestCallbackHandlerMissingCode(t *testing.T) {
	encoded := state.Encode(state.AuthorizationRequest{ClientID: "abc"})
	exch := &stubExchanger{}
	h := newHandlers(config.AuthKindOAuth, exch, &stubBinder{}, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+encoded, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization code")
	assert.Zero(t, exch.exchangeCalls)
}

func TestCallbackHandlerExchangeFailure(t *testing.T) {
	encoded := state.Encode(state.AuthorizationRequest{ClientID: "abc"})
	exch := &stubExchanger{exchangeErr: &idp.TokenExchangeError{Status: 503, Body: "upstream down"}}
	binder := &stubBinder{}
	h := newHandlers(config.AuthKindOAuth, exch, binder, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz&state="+encoded, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "exchange")
	assert.Equal(t, 1, exch.exchangeCalls)
	assert.Zero(t, binder.calls, "binder must not run when the exchange fails")
}

func TestCallbackHandlerBindFailure(t *testing.T) {
	encoded := state.Encode(state.AuthorizationRequest{ClientID: "abc"})
	exch := &stubExchanger{tokens: idp.TokenResponse{AccessToken: "at", IDToken: "idt"}}
	binder := &stubBinder{err: identity.ErrMalformedIdentityToken}
	h := newHandlers(config.AuthKindOAuth, exch, binder, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz&state="+encoded, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "complete authorization")
}

func TestCallbackHandlerSuccess(t *testing.T) {
	req := state.AuthorizationRequest{ClientID: "abc", RedirectURI: "https://client.example.com/cb", State: "cs"}
	encoded := state.Encode(req)
	exch := &stubExchanger{tokens: idp.TokenResponse{AccessToken: "at", IDToken: "idt"}}
	binder := &stubBinder{redirect: "https://client.example.com/cb?code=gw-code&state=cs"}
	h := newHandlers(config.AuthKindOAuth, exch, binder, &stubSession{}, nil)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?code=idp-code&state="+encoded, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, binder.redirect, rec.Header().Get("Location"))
	assert.Equal(t, "idp-code", exch.lastCode)
	assert.Equal(t, "idt", binder.gotToken)
	assert.Equal(t, req, binder.gotReq)
}

func rpcError(t *testing.T, body []byte) (int, string) {
	t.Helper()
	var envelope struct {
		JSONRPC string `json:"jsonrpc"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		ID json.RawMessage `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "2.0", envelope.JSONRPC)
	assert.Equal(t, "null", string(envelope.ID))
	return envelope.Error.Code, envelope.Error.Message
}

func TestMachineAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"missing credential", m2m.ErrMissingCredential, http.StatusUnauthorized, -32001},
		{"invalid signature", verifier.ErrSignatureInvalid, http.StatusUnauthorized, -32001},
		{"expired token", verifier.ErrTokenExpired, http.StatusUnauthorized, -32001},
		{"wrong grant type", m2m.ErrGrantTypeMismatch, http.StatusForbidden, -32002},
		{"key retrieval failure", verifier.ErrKeyRetrieval, http.StatusInternalServerError, -32603},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandlers(config.AuthKindM2M, nil, nil, &stubSession{}, &stubMachine{err: tt.err})
			guarded := h.MachineAuthMiddleware(okTool())

			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			code, _ := rpcError(t, rec.Body.Bytes())
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestMachineAuthMiddlewareSuccess(t *testing.T) {
	machine := &stubMachine{claims: verifier.IdentityClaims{Subject: "svc@clients", GrantType: "client_credentials"}}
	h := newHandlers(config.AuthKindM2M, nil, nil, &stubSession{}, machine)
	guarded := h.MachineAuthMiddleware(okTool())

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tool-ok", rec.Body.String())
}

func TestSessionAuthMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		h := newHandlers(config.AuthKindOAuth, nil, nil, &stubSession{}, nil)
		guarded := h.SessionAuthMiddleware(okTool())

		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata")
		code, _ := rpcError(t, rec.Body.Bytes())
		assert.Equal(t, -32001, code)
	})

	t.Run("invalid token", func(t *testing.T) {
		session := &stubSession{introspectErr: errors.New("token unknown")}
		h := newHandlers(config.AuthKindOAuth, nil, nil, session, nil)
		guarded := h.SessionAuthMiddleware(okTool())

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "bogus", session.gotToken)
	})

	t.Run("valid token", func(t *testing.T) {
		session := &stubSession{props: identity.Props{Subject: "user-1", Email: "u@example.com"}}
		h := newHandlers(config.AuthKindOAuth, nil, nil, session, nil)
		guarded := h.SessionAuthMiddleware(okTool())

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tool-ok", rec.Body.String())
	})
}

func TestStaticBearerMiddleware(t *testing.T) {
	h := newHandlers(config.AuthKindBearer, nil, nil, &stubSession{}, nil)
	guarded := h.StaticBearerMiddleware(okTool())

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"correct token", "Bearer static-secret-token", http.StatusOK},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"no header", "", http.StatusUnauthorized},
		{"prefix of token", "Bearer static-secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
