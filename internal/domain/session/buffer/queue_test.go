package buffer

import (
	"testing"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steps(n int, offset float64) []model.JointCommands {
	out := make([]model.JointCommands, n)
	for i := range out {
		out[i] = model.JointVector{offset + float64(i)}.Commands()
	}
	return out
}

func TestActionQueue_FIFO(t *testing.T) {
	q := NewActionQueue(10, time.Time{})
	assert.Equal(t, 3, q.PushChunk(steps(3, 0), 0))

	for i := 0; i < 3; i++ {
		head, ok := q.PopOne()
		require.True(t, ok)
		assert.Equal(t, float64(i), head.Values()[0])
	}
	_, ok := q.PopOne()
	assert.False(t, ok)
}

func TestActionQueue_TruncatesToSteps(t *testing.T) {
	q := NewActionQueue(100, time.Time{})
	assert.Equal(t, 10, q.PushChunk(steps(15, 0), 10))
	assert.Equal(t, 10, q.Len())
}

func TestActionQueue_NeverExceedsCapacity(t *testing.T) {
	q := NewActionQueue(5, time.Time{})
	for i := 0; i < 7; i++ {
		q.PushChunk(steps(3, float64(i*3)), 0)
		assert.LessOrEqual(t, q.Len(), 5)
	}
	// Oldest evicted first: the last five values remain.
	head, ok := q.PopOne()
	require.True(t, ok)
	assert.Equal(t, 16.0, head.Values()[0])
}

func TestActionQueue_MaybeFlush(t *testing.T) {
	start := time.Unix(0, 0)
	q := NewActionQueue(100, start)
	require.Equal(t, 80, q.HighWater())

	q.PushChunk(steps(81, 0), 0)
	assert.False(t, q.MaybeFlush(start.Add(5*time.Second), 10*time.Second), "interval not elapsed")
	assert.Equal(t, 81, q.Len())

	assert.True(t, q.MaybeFlush(start.Add(11*time.Second), 10*time.Second))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, start.Add(11*time.Second), q.LastCheck())

	q.PushChunk(steps(80, 0), 0)
	assert.False(t, q.MaybeFlush(start.Add(30*time.Second), 10*time.Second), "at high water is not above it")
	assert.Equal(t, 80, q.Len())
	assert.Equal(t, start.Add(30*time.Second), q.LastCheck())
}

func TestActionQueue_Clear(t *testing.T) {
	q := NewActionQueue(0, time.Time{})
	assert.Equal(t, DefaultQueueCapacity, q.Cap())
	q.PushChunk(steps(4, 0), 0)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.PushChunk(nil, 10))
}
