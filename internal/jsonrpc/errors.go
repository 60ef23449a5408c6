// Package jsonrpc provides JSON-RPC 2.0 error envelopes for the
// machine-facing routes.
package jsonrpc

import (
	"encoding/json"
	"net/http"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// Implementation-defined codes for the authentication boundary.
// Invalid or missing credentials map to 401, a credential of the
// wrong issuance class maps to 403.
const (
	CredentialInvalid = -32001
	GrantTypeRejected = -32002
	InsufficientScope = -32003
)

// errorMessages maps error codes to standard messages
var errorMessages = map[int]string{
	ParseError:        "Parse error",
	InvalidRequest:    "Invalid request",
	MethodNotFound:    "Method not found",
	InvalidParams:     "Invalid params",
	InternalError:     "Internal error",
	CredentialInvalid: "Invalid or missing credentials",
	GrantTypeRejected: "Credential grant type not allowed on this route",
	InsufficientScope: "Insufficient scope",
}

// Error is a JSON-RPC 2.0 error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope. The auth boundary only
// ever produces error responses with a null id (the request was rejected
// before its id could be trusted).
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// NewError creates a new JSON-RPC error with the given code and message
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewStandardError creates a new JSON-RPC error using standard error messages
func NewStandardError(code int) *Error {
	message, ok := errorMessages[code]
	if !ok {
		message = "Unknown error"
	}
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WriteError writes a JSON-RPC error envelope with the given HTTP status.
func WriteError(w http.ResponseWriter, httpStatus int, rpcErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(Response{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      nil,
	})
}
