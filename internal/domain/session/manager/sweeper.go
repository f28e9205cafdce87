package manager

import (
	"context"
	"time"

	"github.com/ManuGH/robohub-inference/internal/log"
)

// Sweeper periodically reaps sessions the timeout monitor has marked.
type Sweeper struct {
	Registry *Registry
	Interval time.Duration

	clock clock
}

// Run starts the sweeper loop. It periodically calls SweepOnce on a ticker.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	if s.clock == nil {
		s.clock = realClock{}
	}

	t := s.clock.NewTicker(s.Interval)
	defer t.Stop()

	log.L().Info().Dur("interval", s.Interval).Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one sweep pass.
// This method is deterministic and suitable for unit testing.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	return s.Registry.SweepOnce(ctx)
}
