package manager

import (
	"context"
	"fmt"
	"time"
)

// Pacing strategies.
const (
	PacingHybrid = "hybrid"
	PacingSleep  = "sleep"
)

// spinThreshold is the remainder below which the hybrid pacer busy-waits.
const spinThreshold = time.Millisecond

// Pacer waits out the remainder of a control tick.
// Wait returns ctx.Err() when cancelled before the remainder elapsed.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// NewPacer returns the pacer for a strategy name. Empty selects hybrid.
func NewPacer(strategy string) (Pacer, error) {
	switch strategy {
	case "", PacingHybrid:
		return hybridPacer{threshold: spinThreshold}, nil
	case PacingSleep:
		return sleepPacer{}, nil
	default:
		return nil, fmt.Errorf("unknown pacing strategy %q (want %q or %q)", strategy, PacingHybrid, PacingSleep)
	}
}

type sleepPacer struct{}

func (sleepPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// hybridPacer sleeps for long remainders and spins for short ones, where
// timer wakeup jitter would dominate.
type hybridPacer struct {
	threshold time.Duration
}

func (p hybridPacer) Wait(ctx context.Context, d time.Duration) error {
	if d > p.threshold {
		return sleepPacer{}.Wait(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
