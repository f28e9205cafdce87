// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// warnFraction is the share of the inactivity budget after which the
// monitor starts announcing the pending timeout.
const warnFraction = 0.8

// TimeoutMonitor polls a session's last activity and fires once when the
// inactivity budget is exceeded. It never deletes the session itself.
type TimeoutMonitor struct {
	Timeout      time.Duration
	Interval     time.Duration
	LastActivity func() time.Time
	OnTimeout    func(inactive time.Duration)

	clock  clock
	logger zerolog.Logger
}

// Run polls until the timeout fires or ctx is cancelled.
func (m *TimeoutMonitor) Run(ctx context.Context) {
	if m.clock == nil {
		m.clock = realClock{}
	}
	t := m.clock.NewTicker(m.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if m.Check() {
				return
			}
		}
	}
}

// Check runs a single poll and reports whether the session timed out.
func (m *TimeoutMonitor) Check() bool {
	if m.clock == nil {
		m.clock = realClock{}
	}
	inactive := m.clock.Now().Sub(m.LastActivity())
	if inactive > m.Timeout {
		m.logger.Warn().
			Dur("inactive", inactive).
			Dur("timeout", m.Timeout).
			Msg("session timed out due to inactivity")
		if m.OnTimeout != nil {
			m.OnTimeout(inactive)
		}
		return true
	}
	if inactive > time.Duration(float64(m.Timeout)*warnFraction) {
		m.logger.Info().
			Dur("remaining", m.Timeout-inactive).
			Msg("session will time out soon")
	}
	return false
}
