package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alianzacap/jppr-front/internal/log"
)

// HTTPServer wraps http.Server with sane timeouts for a streaming gateway.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates an HTTP server on the given address. Write timeout
// stays unset because the tool endpoint streams responses.
func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start runs the server until it is stopped or fails.
func (s *HTTPServer) Start() error {
	log.Logf("HTTP server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	log.Logf("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
