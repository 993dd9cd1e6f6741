// Package app runs the long-lived components of the service together and
// shuts them down as one.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a component that runs until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// App manages the lifecycle of the HTTP server, the scheduler and the
// optional webhook worker.
type App struct {
	logger    *slog.Logger
	server    Runner
	scheduler *Scheduler
	webhook   Runner
}

// New creates an App. webhook may be nil.
func New(logger *slog.Logger, server Runner, scheduler *Scheduler, webhook Runner) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		logger:    logger.With("component", "orchestrator"),
		server:    server,
		scheduler: scheduler,
		webhook:   webhook,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails, which stops the others.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting HTTP server...")
		if err := a.server.Run(gCtx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		if gCtx.Err() == nil {
			return errors.New("http server stopped unexpectedly")
		}
		return nil
	})

	if a.webhook != nil {
		g.Go(func() error {
			if err := a.webhook.Run(gCtx); err != nil {
				return fmt.Errorf("webhook worker: %w", err)
			}
			if gCtx.Err() == nil {
				a.logger.Warn("Webhook worker stopped without context cancellation.")
				return errors.New("webhook worker stopped unexpectedly")
			}
			return nil
		})
	}

	if a.scheduler != nil {
		g.Go(func() error {
			a.logger.Info("Starting scheduler...")
			if err := a.scheduler.Start(gCtx); err != nil {
				a.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			a.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := a.scheduler.Stop(); err != nil {
				a.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	a.logger.Info("Orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Orchestrator stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Orchestrator stopped gracefully.")
	return nil
}
