package app

import (
	"context"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/config"
	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/service/chats"
	"github.com/NicolasFrouin/chat/internal/service/identity"
	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/store/badger"
	"github.com/NicolasFrouin/chat/internal/store/sqlite"
	transporthttp "github.com/NicolasFrouin/chat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// OpenStore opens the storage driver selected by cfg.
func OpenStore(cfg config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
		return st, nil
	case config.StorageBadger:
		st, err := badger.New(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		logger.Info().Str("badger_path", cfg.BadgerPath).Msg("badger initialized")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	directory := identity.New(st)
	chatLog := chats.New(st)

	hub := core.NewHub(directory, chatLog, core.Options{
		InboxSize:     cfg.CommandBuffer,
		TypingTimeout: cfg.TypingTimeout,
		Logger:        logger,
	})
	server := transporthttp.NewServer(hub, directory, chatLog, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	// Websocket handlers outlive Shutdown; tie them to ctx so they close.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
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
