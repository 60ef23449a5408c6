// Package internal wires the JPPR gateway application together.
package internal

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/gis"
	"github.com/alianzacap/jppr-front/internal/identity"
	"github.com/alianzacap/jppr-front/internal/idp"
	"github.com/alianzacap/jppr-front/internal/log"
	"github.com/alianzacap/jppr-front/internal/m2m"
	"github.com/alianzacap/jppr-front/internal/server"
	"github.com/alianzacap/jppr-front/internal/sessionprovider"
	"github.com/alianzacap/jppr-front/internal/storage"
	"github.com/alianzacap/jppr-front/internal/verifier"
)

// JPPRFront is the assembled gateway application: the property tool server
// behind the configured authentication strategy.
type JPPRFront struct {
	config     *config.Config
	httpServer *server.HTTPServer
	store      *storage.Store
}

// NewJPPRFront builds the application from configuration. Only the
// components the configured auth mode needs are constructed.
func NewJPPRFront(ctx context.Context, cfg *config.Config, version string) (*JPPRFront, error) {
	log.LogInfoWithFields("jpprfront", "Building gateway application", map[string]any{
		"baseURL": cfg.BaseURL,
		"auth":    string(cfg.AuthMode),
	})

	gisClient := gis.NewClient(cfg.MIPRBaseURL)
	toolServer := gis.NewToolServer(gisClient, version)

	var (
		store     *storage.Store
		session   server.SessionAuthority
		exchanger server.CodeExchanger
		binder    server.SessionBinder
		machine   server.MachineAuthenticator
	)

	if cfg.AuthMode.OAuthEnabled() {
		var err error
		store, err = storage.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to setup storage: %w", err)
		}

		provider, err := sessionprovider.New(cfg, store)
		if err != nil {
			return nil, fmt.Errorf("failed to setup session provider: %w", err)
		}
		session = provider
		binder = identity.NewBinder(provider)
		exchanger = idp.NewClient(cfg.Trust, cfg.CallbackURL())
	}

	if cfg.AuthMode.M2MEnabled() {
		v, err := verifier.New(ctx, cfg.Trust)
		if err != nil {
			return nil, fmt.Errorf("failed to setup token verifier: %w", err)
		}
		machine = m2m.NewAuthenticator(v)
	}

	handlers := server.NewGatewayHandlers(cfg, exchanger, binder, session, machine, toolServer.Handler(), version)
	httpServer := server.NewHTTPServer(cfg.Addr, server.NewRouter(handlers))

	return &JPPRFront{
		config:     cfg,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Run starts the gateway and blocks until a shutdown signal or a server
// error, then shuts down gracefully.
func (j *JPPRFront) Run() error {
	log.LogInfoWithFields("jpprfront", "Starting gateway", map[string]any{
		"addr": j.config.Addr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := j.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.LogInfoWithFields("jpprfront", "Shutdown requested", map[string]any{
			"reason": context.Cause(ctx).Error(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return j.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if j.store != nil {
		j.store.Close()
	}

	if err != nil {
		log.LogErrorWithFields("jpprfront", "Gateway shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("jpprfront", "Gateway shutdown complete", nil)
	return nil
}
