package worker

import (
	"context"
	"go.uber.org/zap"
	"time"
)

type Expirer interface {
	ExpireStale(ctx context.Context, holdWindow time.Duration, batch int) (int, error)
}

// Sweeper expires PENDING orders whose hold outlived HoldWindow.
type Sweeper struct {
	Orders     Expirer
	HoldWindow time.Duration
	Interval   time.Duration
	Batch      int
	Log        *zap.Logger
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.Log.Error("sweep failed", zap.Error(err))
		} else if n > 0 {
			s.Log.Info("expired stale orders", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// SweepOnce keeps taking batches while full ones come back. Without a
// positive batch size it makes a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.Orders.ExpireStale(ctx, s.HoldWindow, s.Batch)
		total += n
		if err != nil || n == 0 || s.Batch <= 0 || n < s.Batch {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
