package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryArchive keeps history in process memory.
type MemoryArchive struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (m *MemoryArchive) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryArchive) Latest(_ context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Record
	for i := range m.records {
		r := &m.records[i]
		if r.SessionID != sessionID {
			continue
		}
		if best == nil || !r.EndedAt.Before(best.EndedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	out := *best
	return &out, nil
}

func (m *MemoryArchive) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := slices.Clone(m.records)
	m.mu.RUnlock()

	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Record) int {
		return b.EndedAt.Compare(a.EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryArchive) Close() error { return nil }
