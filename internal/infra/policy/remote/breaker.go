// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/robohub-inference/internal/metrics"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // requests allowed
	BreakerOpen                         // requests rejected
	BreakerHalfOpen                     // probing after the reset timeout
)

var ErrCircuitOpen = errors.New("policy worker circuit breaker is open")

// CircuitBreaker stops calling a failing policy worker until resetTimeout
// has passed since the last failure.
type CircuitBreaker struct {
	name             string
	now              func() time.Time
	mu               sync.Mutex
	state            BreakerState
	failures         int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
}

func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	cb := &CircuitBreaker{
		name:             name,
		now:              time.Now,
		state:            BreakerClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
	}
	metrics.SetPolicyCircuitState(name, cb.state.String())
	return cb
}

// Execute runs fn unless the circuit is open. Errors for which ignore
// returns true do not count as failures.
func (cb *CircuitBreaker) Execute(fn func() error, ignore func(error) bool) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && (ignore == nil || !ignore(err)) {
		cb.recordFailure()
		return err
	}
	if err == nil {
		cb.recordSuccess()
	}
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != BreakerOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		cb.setLocked(BreakerHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
		cb.setLocked(BreakerOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setLocked(BreakerClosed)
}

func (cb *CircuitBreaker) setLocked(s BreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.SetPolicyCircuitState(cb.name, s.String())
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
