// Package app wires the session engine, file service and media relay
// together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrodas/lanchat-server/internal/auth"
	"github.com/vrodas/lanchat-server/internal/chat"
	"github.com/vrodas/lanchat-server/internal/config"
	"github.com/vrodas/lanchat-server/internal/file"
	"github.com/vrodas/lanchat-server/internal/media"
	"github.com/vrodas/lanchat-server/internal/store"
	"github.com/vrodas/lanchat-server/internal/store/sqlite"
)

// App runs the three network services over one logical session.
type App struct {
	chat  *chat.Server
	file  *file.Server
	media *media.Relay

	store           store.Store
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	provider := auth.NewService(st)
	registry := chat.NewRegistry(logger)

	return &App{
		chat:            chat.NewServer(cfg.ChatAddr, provider, registry, cfg.MaxFrameSize, logger),
		file:            file.NewServer(cfg.FileAddr, cfg.StorageDir, file.NewIndex(), cfg.MaxFrameSize, logger),
		media:           media.NewRelay(cfg.MediaAddr, cfg.MediaMemberTTL, cfg.MediaSweepInterval, logger),
		store:           st,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}, nil
}

// Run starts all three services and blocks until context cancellation
// or the first fatal error. Bind failures are the only fatal errors;
// everything else stays scoped to one connection.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 3)
	go func() { serverErr <- a.chat.Run(ctx) }()
	go func() { serverErr <- a.file.Run(ctx) }()
	go func() { serverErr <- a.media.Run(ctx) }()

	select {
	case err := <-serverErr:
		cancel()
		a.drain(serverErr, 2)
		a.cleanup()
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		a.drain(serverErr, 3)
		a.cleanup()
		return nil
	}
}

// drain waits for the remaining services to stop, bounded by the
// shutdown timeout.
func (a *App) drain(serverErr <-chan error, n int) {
	timer := time.NewTimer(a.shutdownTimeout)
	defer timer.Stop()

	for i := 0; i < n; i++ {
		select {
		case err := <-serverErr:
			if err != nil {
				a.log.Warn().Err(err).Msg("service exited with error")
			}
		case <-timer.C:
			a.log.Warn().Msg("shutdown timeout exceeded")
			return
		}
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
