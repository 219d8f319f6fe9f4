// Package sweeper schedules the recurring expiry pass.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultInterval = 300 * time.Second

// SweepFunc runs one expiry pass and reports how many records it archived.
type SweepFunc func(ctx context.Context) (int64, error)

// Sweeper triggers a sweep pass on a fixed interval. Overlapping triggers
// collapse into one in-flight pass, so the pass body stays safe to schedule
// concurrently with itself and with the inline pass run before creations.
type Sweeper struct {
	sweep    SweepFunc
	logger   *slog.Logger
	interval time.Duration
	group    singleflight.Group
}

// New creates a Sweeper. A non-positive interval falls back to 300 seconds.
func New(sweep SweepFunc, logger *slog.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Sweeper{
		sweep:    sweep,
		logger:   logger,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. A pass either
// completes its per-record units of work or doesn't start them; cancellation
// between passes leaves no partial archival state.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	archived, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		s.logger.Error("sweep pass failed", slog.Any("err", err))
		return
	}

	if n := archived.(int64); n > 0 {
		s.logger.Info("sweep pass archived aliases", slog.Int64("archived", n))
	}
}
