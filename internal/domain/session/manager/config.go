// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"fmt"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/buffer"
)

// SessionConfig holds the scheduling parameters of a session. A copy is
// taken at creation time, so later changes only affect new sessions.
type SessionConfig struct {
	ControlHz         int
	InferenceHz       int
	NActionSteps      int
	QueueCapacity     int
	CleanupInterval   time.Duration
	InactivityTimeout time.Duration
	WatchdogInterval  time.Duration
	Pacing            string
	SlowTickThreshold time.Duration
}

// DefaultSessionConfig returns the stock 20 Hz control / 2 Hz inference setup.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ControlHz:         20,
		InferenceHz:       2,
		NActionSteps:      10,
		QueueCapacity:     buffer.DefaultQueueCapacity,
		CleanupInterval:   10 * time.Second,
		InactivityTimeout: 600 * time.Second,
		WatchdogInterval:  60 * time.Second,
		Pacing:            PacingHybrid,
		SlowTickThreshold: 10 * time.Millisecond,
	}
}

// Validate rejects configurations a control loop cannot run with.
func (c SessionConfig) Validate() error {
	switch {
	case c.ControlHz <= 0:
		return fmt.Errorf("control_hz must be > 0, got %d", c.ControlHz)
	case c.InferenceHz <= 0:
		return fmt.Errorf("inference_hz must be > 0, got %d", c.InferenceHz)
	case c.NActionSteps <= 0:
		return fmt.Errorf("n_action_steps must be > 0, got %d", c.NActionSteps)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("queue_capacity must be > 0, got %d", c.QueueCapacity)
	case c.InactivityTimeout <= 0:
		return fmt.Errorf("inactivity timeout must be > 0, got %s", c.InactivityTimeout)
	case c.WatchdogInterval <= 0:
		return fmt.Errorf("watchdog interval must be > 0, got %s", c.WatchdogInterval)
	}
	if _, err := NewPacer(c.Pacing); err != nil {
		return err
	}
	return nil
}

// InferenceInterval is the number of ticks between scheduled inferences.
func (c SessionConfig) InferenceInterval() int {
	if c.InferenceHz <= 0 {
		return 1
	}
	return max(1, c.ControlHz/c.InferenceHz)
}

// TickPeriod is the target duration of one control tick.
func (c SessionConfig) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.ControlHz)
}
