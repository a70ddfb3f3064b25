package service

import (
	"context"
	"time"

	"github.com/larder/larder-backend/pkg/logger"
)

// Scheduler periodically reconciles the period that just closed and runs the
// reorder scan. One cycle covers [tick - interval, tick), so back-to-back
// cycles tile the timeline without gaps or overlap.
type Scheduler struct {
	reconciler *ReconcileService
	scanner    *ReorderScanner
	interval   time.Duration
	logger     *logger.Logger
	cancel     context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(reconciler *ReconcileService, scanner *ReorderScanner, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		scanner:    scanner,
		interval:   interval,
		logger:     log,
	}
}

// Start starts the scheduler in a background goroutine
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("reconciliation scheduler started")

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("reconciliation scheduler stopped")
				return
			case tick := <-ticker.C:
				s.runCycle(ctx, tick)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) runCycle(ctx context.Context, tick time.Time) {
	start := time.Now()
	periodEnd := tick.UTC().Truncate(time.Minute)
	periodStart := periodEnd.Add(-s.interval)

	if _, err := s.reconciler.Reconcile(ctx, periodStart, periodEnd); err != nil {
		s.logger.Error().Err(err).
			Time("period_start", periodStart).
			Time("period_end", periodEnd).
			Msg("scheduled reconciliation failed")
	}

	if err := s.scanner.Scan(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled reorder scan failed")
	}

	s.logger.Info().Dur("duration", time.Since(start)).Msg("scheduler cycle completed")
}
