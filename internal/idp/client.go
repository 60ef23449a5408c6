// Package idp performs the two network legs of an authorization-code
// exchange against the upstream identity provider: composing the redirect
// to the provider's hosted authorization page, and exchanging the returned
// code for tokens.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/alianzacap/jppr-front/internal/config"
)

// exchangeTimeout bounds the token-endpoint call. A failed exchange is
// terminal for the authorization attempt: codes are single-use, so the
// client never retries.
const exchangeTimeout = 10 * time.Second

// ErrIncompleteTokenResponse is returned when the provider's success
// response is missing either the access token or the identity token.
var ErrIncompleteTokenResponse = errors.New("token response missing access_token or id_token")

// TokenExchangeError reports a non-success response from the provider's
// token endpoint.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Body)
}

// TokenResponse is the provider's answer to a successful code exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// Client talks to one configured identity provider. The exchange protocol
// (JSON body with audience vs. form body with Basic auth) is selected by
// the trust configuration, not by separate implementations.
type Client struct {
	trust             config.Trust
	callbackURL       string
	authorizeEndpoint string
	tokenEndpoint     string
	httpClient        *http.Client
}

// NewClient creates a client for the configured provider. callbackURL must
// match the redirect URI registered with the provider.
func NewClient(trust config.Trust, callbackURL string) *Client {
	return &Client{
		trust:             trust,
		callbackURL:       callbackURL,
		authorizeEndpoint: trust.AuthorizeEndpoint(),
		tokenEndpoint:     trust.TokenEndpoint(),
		httpClient:        &http.Client{Timeout: exchangeTimeout},
	}
}

// AuthorizeURL composes the provider's hosted authorization page URL with
// the encoded state. Every dynamic segment is percent-encoded.
func (c *Client) AuthorizeURL(encodedState string) string {
	q := url.Values{}
	q.Set("client_id", c.trust.ClientID)
	q.Set("redirect_uri", c.callbackURL)
	q.Set("response_type", "code")
	q.Set("scope", c.trust.Scope)
	if c.trust.Audience != "" {
		q.Set("audience", c.trust.Audience)
	}
	q.Set("state", encodedState)

	return c.authorizeEndpoint + "?" + q.Encode()
}

// ExchangeCode exchanges an authorization code for tokens. It performs a
// single call and never retries: the provider rejects reused codes.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	var (
		resp TokenResponse
		err  error
	)
	switch c.trust.ExchangeStyle {
	case config.ExchangeStyleForm:
		resp, err = c.exchangeForm(ctx, code)
	default:
		resp, err = c.exchangeJSON(ctx, code)
	}
	if err != nil {
		return TokenResponse{}, err
	}

	if resp.AccessToken == "" || resp.IDToken == "" {
		return TokenResponse{}, ErrIncompleteTokenResponse
	}
	return resp, nil
}

// exchangeJSON posts the client credentials in a JSON body, the protocol
// spoken by domain-scoped providers that support an audience parameter.
func (c *Client) exchangeJSON(ctx context.Context, code string) (TokenResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.trust.ClientID,
		"client_secret": string(c.trust.ClientSecret),
		"code":          code,
		"redirect_uri":  c.callbackURL,
	})
	if err != nil {
		return TokenResponse{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, bytes.NewReader(payload))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("token endpoint request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("read token response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return TokenResponse{}, &TokenExchangeError{
			Status: httpResp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return resp, nil
}

// exchangeForm posts a form-encoded body with HTTP Basic client
// authentication, the generic OAuth protocol.
func (c *Client) exchangeForm(ctx context.Context, code string) (TokenResponse, error) {
	conf := oauth2.Config{
		ClientID:     c.trust.ClientID,
		ClientSecret: string(c.trust.ClientSecret),
		RedirectURL:  c.callbackURL,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return TokenResponse{}, &TokenExchangeError{
				Status: retrieveErr.Response.StatusCode,
				Body:   strings.TrimSpace(string(retrieveErr.Body)),
			}
		}
		return TokenResponse{}, fmt.Errorf("token endpoint request: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	return TokenResponse{
		AccessToken: token.AccessToken,
		IDToken:     idToken,
		TokenType:   token.TokenType,
	}, nil
}
