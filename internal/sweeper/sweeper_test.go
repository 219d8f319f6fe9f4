package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_Run(t *testing.T) {
	t.Run("sweeps on the interval until cancelled", func(t *testing.T) {
		var passes atomic.Int64

		sweep := func(ctx context.Context) (int64, error) {
			passes.Add(1)
			return 0, nil
		}

		s := New(sweep, discardLogger(), 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 105*time.Millisecond)
		defer cancel()

		err := s.Run(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, passes.Load(), int64(3))
	})

	t.Run("keeps sweeping after a failed pass", func(t *testing.T) {
		var passes atomic.Int64

		sweep := func(ctx context.Context) (int64, error) {
			if passes.Add(1) == 1 {
				return 0, errors.New("unknown error")
			}
			return 1, nil
		}

		s := New(sweep, discardLogger(), 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
		defer cancel()

		err := s.Run(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, passes.Load(), int64(2))
	})

	t.Run("returns immediately on a cancelled context", func(t *testing.T) {
		sweep := func(ctx context.Context) (int64, error) {
			t.Error("sweep must not run")
			return 0, nil
		}

		s := New(sweep, discardLogger(), time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Run(ctx)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNew(t *testing.T) {
	t.Run("non-positive interval falls back to the default", func(t *testing.T) {
		s := New(func(ctx context.Context) (int64, error) { return 0, nil }, nil, 0)

		assert.Equal(t, defaultInterval, s.interval)
		assert.NotNil(t, s.logger)
	})
}
