// Package daemon owns the long-lived runtime: console, directive link, HTTP
// API and config watcher, all joined under one errgroup.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hotmic/internal/bootstrap"
	"hotmic/internal/console"
	xlog "hotmic/internal/log"
	"hotmic/internal/providers/directives"
)

const defaultShutdownTimeout = 5 * time.Second

type App struct {
	services        bootstrap.Services
	logger          zerolog.Logger
	reloadSignal    os.Signal
	shutdownTimeout time.Duration
}

func NewApp(services bootstrap.Services) *App {
	return &App{
		services:        services,
		logger:          xlog.WithComponent("daemon"),
		reloadSignal:    syscall.SIGHUP,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Run blocks until ctx is done, the user quits or a component fails. The
// session controller is closed before returning.
func (a *App) Run(ctx context.Context) error {
	s := a.services
	g, gctx := errgroup.WithContext(ctx)

	a.logger.Info().Str("event", "daemon.start").Msg("hotmic running")

	if s.Console != nil {
		g.Go(func() error {
			return s.Console.Run(gctx)
		})
	}

	if s.Link != nil {
		g.Go(func() error {
			err := s.Link.Run(gctx, s.Controller)
			if errors.Is(err, directives.ErrNotConfigured) {
				a.logger.Info().Str("event", "link.disabled").Msg("no directive URL configured")
				return nil
			}
			return err
		})
	}

	if s.Config != nil {
		g.Go(func() error {
			if err := s.Config.Watch(gctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)

				for {
					select {
					case <-gctx.Done():
						return nil
					case <-hup:
						a.logger.Info().Str("event", "config.reload_signal").Msg("received reload signal, reloading config")
						if err := s.Config.Reload(gctx); err != nil {
							a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	if s.HTTP != nil {
		g.Go(func() error {
			a.logger.Info().Str("event", "http.listen").Str("addr", s.HTTP.Addr).Msg("control API listening")
			if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()
			return s.HTTP.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	if s.Controller != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if closeErr := s.Controller.Close(closeCtx); closeErr != nil {
			a.logger.Warn().Err(closeErr).Str("event", "daemon.close_timeout").Msg("session controller did not drain in time")
		}
	}

	if errors.Is(err, console.ErrQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}
	a.logger.Info().Str("event", "daemon.stop").Msg("hotmic stopped")
	return err
}
