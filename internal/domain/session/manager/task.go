// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// joinTimeout bounds how long stop waits for a goroutine that ignores
// cancellation, for instance one blocked inside a capability call.
var joinTimeout = 30 * time.Second

var errJoinTimeout = errors.New("goroutine did not exit after cancellation")

// task is a single cancellable goroutine owned by a session.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func spawn(parent context.Context, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// stop cancels the goroutine and waits for it to return. The wait does not
// depend on any caller context; it gives up only after joinTimeout.
func (t *task) stop() error {
	t.cancel()
	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w (waited %s)", errJoinTimeout, joinTimeout)
	}
}

// taskGroup tracks registry-owned goroutines and provides a bounded join on shutdown.
type taskGroup struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func (g *taskGroup) Go(fn func()) bool {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		fn()
	}()

	return true
}

func (g *taskGroup) CloseAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("registry worker drain timeout: %w", ctx.Err())
	}
}
