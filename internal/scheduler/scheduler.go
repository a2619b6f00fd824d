// Package scheduler triggers periodic fetch runs.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
)

// Runner executes one fetch run. *fetcher.Fetcher satisfies this interface.
type Runner interface {
	Run(ctx context.Context) (*fetcher.RunResult, error)
}

// Scheduler fires a fetch run on a fixed interval. An interval of zero
// disables the scheduler entirely.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(runner Runner, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if interval < 0 {
		return nil, errors.New("interval must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}, nil
}

// Enabled reports whether the scheduler will fire at all.
func (s *Scheduler) Enabled() bool {
	return s.interval > 0
}

// Start blocks until ctx is canceled, firing a run every interval. The first
// run fires immediately so a fresh deployment does not wait a full interval
// for data. A tick that lands while a run is still in flight is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("scheduler disabled, runs are API-triggered only")
		<-ctx.Done()
		return
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, fetcher.ErrAlreadyRunning):
		s.logger.Info("skipping scheduled run, previous run still in flight")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}
