package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/config"
	"github.com/deltadefenders/farmchat-server/internal/core"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
	"github.com/deltadefenders/farmchat-server/internal/store"
	"github.com/deltadefenders/farmchat-server/internal/store/sqlite"
	transporthttp "github.com/deltadefenders/farmchat-server/internal/transport/http"
)

// App wires together store, services, core and transport layers.
type App struct {
	server            *stdhttp.Server
	shutdownTimeout   time.Duration
	reconcileInterval time.Duration
	hub               *core.Hub
	conversations     *conversations.Service
	store             store.Store
	log               *zerolog.Logger
}

// NewJWTConfig derives token settings from the server configuration.
func NewJWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, NewJWTConfig(cfg))
	convService := conversations.New(st, logger)
	msgService := messages.New(st, convService, cfg.MaxContentLength, logger)

	hub := core.NewHub(msgService, convService, logger)
	server := transporthttp.NewServer(hub, authService, convService, msgService, cfg, logger)

	return &App{
		server:            server,
		shutdownTimeout:   cfg.ShutdownTimeout,
		reconcileInterval: cfg.ReconcileInterval,
		hub:               hub,
		conversations:     convService,
		store:             st,
		log:               logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)
	go a.reconcileLoop(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// reconcileLoop periodically repairs stale last message pointers. A zero interval disables it.
func (a *App) reconcileLoop(ctx context.Context) {
	if a.reconcileInterval <= 0 {
		return
	}

	ticker := time.NewTicker(a.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reconcile(ctx)
		}
	}
}

func (a *App) reconcile(ctx context.Context) {
	repaired, err := a.conversations.ReconcileLastMessages(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn().Err(err).Msg("last message reconciliation failed")
		}
		return
	}
	if repaired > 0 {
		a.log.Debug().Int("repaired", repaired).Msg("reconciliation pass finished")
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
