package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/observability/metrics"
	"github.com/target/mmk-bff/internal/ports"
)

// SessionCleanupOptions groups dependencies for SessionCleanupService.
type SessionCleanupOptions struct {
	// Cleaner removes expired sessions. When nil the service logs a warning and idles.
	Cleaner  ports.ExpiredSessionCleaner
	Config   config.SessionCleanupConfig
	Logger   *slog.Logger
	Metrics  metrics.CleanupRecorder // Optional: receives each pass outcome
	Sessions ports.SessionMetrics    // Optional: receives removed counts
}

// SessionCleanupService periodically removes expired sessions.
type SessionCleanupService struct {
	cleaner  ports.ExpiredSessionCleaner
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.CleanupRecorder
	sessions ports.SessionMetrics
}

// NewSessionCleanupService constructs a SessionCleanupService.
func NewSessionCleanupService(opts SessionCleanupOptions) *SessionCleanupService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	cfg.Sanitize()
	return &SessionCleanupService{
		cleaner:  opts.Cleaner,
		interval: cfg.Interval,
		logger:   logger.With("component", "session_cleanup"),
		metrics:  opts.Metrics,
		sessions: opts.Sessions,
	}
}

// Run sleeps for the configured interval and removes expired sessions, until ctx is cancelled.
// Failures of a single pass are logged and the loop continues.
// Returns nil on graceful shutdown.
func (s *SessionCleanupService) Run(ctx context.Context) error {
	if s.cleaner == nil {
		s.logger.WarnContext(ctx, "no expired session cleaner registered; session cleanup is idle")
		<-ctx.Done()
		return nil
	}

	s.logger.InfoContext(ctx, "starting session cleanup", "interval", s.interval)

	// Spread the first pass so replicas started together do not contend on the same rows.
	timer := time.NewTimer(s.interval + s.jitter(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session cleanup stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(ctx, err)
			}
			timer.Reset(s.interval)
		}
	}
}

// RunOnce performs a single cleanup pass and returns the number of sessions removed.
func (s *SessionCleanupService) RunOnce(ctx context.Context) (int64, error) {
	if s.cleaner == nil {
		return 0, errors.New("no expired session cleaner registered")
	}
	start := time.Now()
	removed, err := s.cleaner.DeleteExpired(ctx)

	if s.metrics != nil {
		s.metrics.ObserveCleanup(metrics.CleanupMetric{
			Removed:  removed,
			Duration: time.Since(start),
			Err:      suppressContextCancellation(err),
		})
	}
	if s.sessions != nil {
		s.sessions.SessionsEnded(removed)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "removed expired sessions", "count", removed)
	}
	return removed, err
}

// jitter returns a random delay up to 10% of the interval.
func (s *SessionCleanupService) jitter(ctx context.Context) time.Duration {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return 0
	}
	return time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
}

func (s *SessionCleanupService) logCleanupError(ctx context.Context, err error) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, "session cleanup cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "session cleanup failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
