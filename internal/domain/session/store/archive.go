// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store archives the final snapshot of every deleted session.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// ErrNotFound is returned when no record exists for a session.
var ErrNotFound = errors.New("history record not found")

// Reasons a session left the registry.
const (
	ReasonDeleted  = "deleted"
	ReasonTimeout  = "timeout"
	ReasonShutdown = "shutdown"
)

// Record is the archived end-of-life snapshot of a session. A session ID
// may appear more than once if it was reused after deletion.
type Record struct {
	SessionID string       `json:"session_id"`
	Reason    string       `json:"reason"`
	EndedAt   time.Time    `json:"ended_at"`
	Status    model.Status `json:"status"`
}

// Archive persists session history.
type Archive interface {
	Put(ctx context.Context, rec Record) error
	// Latest returns the newest record for sessionID or ErrNotFound.
	Latest(ctx context.Context, sessionID string) (*Record, error)
	// List returns records newest first; limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
