// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package buffer

import (
	"sync"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// DefaultQueueCapacity bounds the action queue when no capacity is configured.
const DefaultQueueCapacity = 100

// ActionQueue is a bounded FIFO of command steps. When full, the oldest
// steps are evicted so producers never block.
type ActionQueue struct {
	mu        sync.Mutex
	items     []model.JointCommands
	capacity  int
	highWater int
	lastCheck time.Time
}

// NewActionQueue creates a queue with the given capacity. The high-water
// mark is 80% of capacity.
func NewActionQueue(capacity int, now time.Time) *ActionQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ActionQueue{
		items:     make([]model.JointCommands, 0, capacity),
		capacity:  capacity,
		highWater: capacity * 8 / 10,
		lastCheck: now,
	}
}

// PushChunk appends up to maxSteps steps and returns how many were enqueued.
// maxSteps <= 0 enqueues the whole chunk.
func (q *ActionQueue) PushChunk(steps []model.JointCommands, maxSteps int) int {
	if maxSteps > 0 && len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	if len(steps) == 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, steps...)
	if over := len(q.items) - q.capacity; over > 0 {
		// Shift in place so the backing array does not grow without bound.
		n := copy(q.items, q.items[over:])
		clear(q.items[n:])
		q.items = q.items[:n]
	}
	return len(steps)
}

// PopOne removes and returns the head step.
func (q *ActionQueue) PopOne() (model.JointCommands, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	return head, true
}

// MaybeFlush clears the queue when it sits above the high-water mark and
// more than interval has passed since the previous check.
func (q *ActionQueue) MaybeFlush(now time.Time, interval time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if now.Sub(q.lastCheck) <= interval {
		return false
	}
	flushed := false
	if len(q.items) > q.highWater {
		q.clearLocked()
		flushed = true
	}
	q.lastCheck = now
	return flushed
}

// Clear drops every queued step.
func (q *ActionQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *ActionQueue) clearLocked() {
	clear(q.items)
	q.items = q.items[:0]
}

func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ActionQueue) Cap() int { return q.capacity }

func (q *ActionQueue) HighWater() int { return q.highWater }

// LastCheck is the time of the last flush evaluation.
func (q *ActionQueue) LastCheck() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastCheck
}
