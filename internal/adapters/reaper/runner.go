// Package reaper provides adapters for running the expired-session reaper.
package reaper

import (
	"context"
	"log/slog"

	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/observability/metrics"
	"github.com/target/mmk-bff/internal/ports"
	"github.com/target/mmk-bff/internal/service"
)

// Runner provides a simple adapter to run the session cleanup loop.
// It constructs the cleanup service around the configured backend's cleaner.
type Runner struct {
	cleanup *service.SessionCleanupService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Cleaner ports.ExpiredSessionCleaner
	Config  config.SessionCleanupConfig
	Logger  *slog.Logger

	// Optional
	Metrics  metrics.CleanupRecorder
	Sessions ports.SessionMetrics
}

// NewRunner creates a session reaper runner. A nil Cleaner is allowed: Run then logs a
// warning and idles until cancelled, and RunOnce reports an error.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		cleanup: service.NewSessionCleanupService(service.SessionCleanupOptions{
			Cleaner:  opts.Cleaner,
			Config:   opts.Config,
			Logger:   opts.Logger,
			Metrics:  opts.Metrics,
			Sessions: opts.Sessions,
		}),
		logger: opts.Logger,
	}
}

// Run starts the cleanup loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting session reaper runner")
	return r.cleanup.Run(ctx)
}

// RunOnce performs a single cleanup pass and returns the number of sessions removed.
func (r *Runner) RunOnce(ctx context.Context) (int64, error) {
	return r.cleanup.RunOnce(ctx)
}
