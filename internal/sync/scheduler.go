package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// Scheduler runs the Runner on a repeating interval, with an out-of-band
// trigger channel for manual kicks from the HTTP layer. A trigger that
// arrives while a run is in flight is redundant by definition (the in-flight
// run will pick up the same dates), so lock contention is logged and dropped.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler driving the given runner.
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Trigger requests an immediate sync without blocking. Redundant triggers
// while one is already queued are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes a sync immediately on start, then on every tick or manual
// trigger until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	defer s.logger.Info("scheduler stopped")

	// Run immediately on start.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.InfoContext(ctx, "sync skipped, another run in flight")
	case err != nil:
		s.logger.ErrorContext(ctx, "scheduled sync failed", slog.String("error", err.Error()))
	default:
		s.logger.InfoContext(ctx, "scheduled sync finished",
			slog.Int("processed_dates", result.ProcessedDates),
			slog.Int("total_fills", result.TotalFills),
			slog.Int("errors", len(result.Errors)),
		)
	}
}
