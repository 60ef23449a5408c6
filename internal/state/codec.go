// Package state round-trips the caller's original authorization request
// through the upstream identity provider's redirect as an opaque value.
package state

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedState is returned when a state value is not valid encoded data.
var ErrMalformedState = errors.New("malformed state parameter")

// ErrIncompleteState is returned when a state value decodes but lacks the
// required client identifier.
var ErrIncompleteState = errors.New("state missing client id")

// AuthorizationRequest captures a caller's request to start an OAuth flow.
// It is immutable once captured: created on the authorize route, consumed
// exactly once when the callback completes or the flow aborts.
type AuthorizationRequest struct {
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri,omitempty"`
	Scope               []string `json:"scope,omitempty"`
	State               string   `json:"state,omitempty"`
	ResponseType        string   `json:"responseType,omitempty"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
}

// Encode serializes the request into a URL-safe opaque value. It never
// fails for requests produced by this gateway.
func Encode(req AuthorizationRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		// AuthorizationRequest contains only strings and slices; marshal
		// cannot fail for values this gateway constructs.
		panic(fmt.Sprintf("state: marshal authorization request: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode reverses Encode. It returns ErrMalformedState for values that are
// not valid encoded data and ErrIncompleteState when the client identifier
// is absent.
func Decode(value string) (AuthorizationRequest, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return AuthorizationRequest{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	var req AuthorizationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return AuthorizationRequest{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	if req.ClientID == "" {
		return AuthorizationRequest{}, ErrIncompleteState
	}
	return req, nil
}
