package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PortDelta/internal/usecase"
	"PortDelta/pkg/config"
	xhttp "PortDelta/pkg/http"
	applogger "PortDelta/pkg/logger"
)

// App owns the long running parts of PortDelta: the scheduler, the optional
// quote collector and the optional HTTP server.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	scheduler  *usecase.Scheduler
	collector  *usecase.QuoteCollector
	httpServer *xhttp.Server
}

// New creates an App. collector and httpServer may be nil.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	scheduler *usecase.Scheduler,
	collector *usecase.QuoteCollector,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		scheduler:  scheduler,
		collector:  collector,
		httpServer: httpServer,
	}
}

// Run starts everything and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// quotes fall back to the price provider
			a.logger.Error("quote collector start failed", applogger.Error(err))
		} else {
			a.logger.Info("quote collector started")
		}
	}

	err := a.scheduler.Run(ctx)
	a.logger.Info("shutdown signal received")
	a.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Once runs a single round as of at and returns its abort error, if any.
func (a *App) Once(ctx context.Context, at time.Time) error {
	_, err := a.scheduler.RunOnceAt(ctx, at)
	return err
}

// shutdown runs on a fresh context so the cancelled run context does not cut
// the grace period short.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.logger.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
