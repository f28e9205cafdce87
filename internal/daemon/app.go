// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/robohub-inference/internal/config"
	"github.com/ManuGH/robohub-inference/internal/log"
)

// App owns the long-lived runtime lifecycle (config watcher, reload signal)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      *Manager
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal
}

func NewApp(manager *Manager, cfgHolder *config.ConfigHolder) *App {
	return &App{
		logger:       log.WithComponent("daemon"),
		manager:      manager,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		logConfig(a.logger, a.cfgHolder.Path())

		// The watcher is best effort; a failure leaves the current config in place.
		g.Go(func() error {
			if err := a.cfgHolder.Watch(gctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, a.reloadSignal)
			defer signal.Stop(hup)
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hup:
					a.logger.Info().Str(log.FieldEvent, "config.reload_signal").Msg("received reload signal, reloading config")
					if err := a.cfgHolder.Reload(gctx); err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		return a.manager.Start(gctx)
	})

	return g.Wait()
}
