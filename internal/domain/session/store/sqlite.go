// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/robohub-inference/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteArchive implements Archive using SQLite.
type SqliteArchive struct {
	DB *sql.DB
}

// NewSqliteArchive opens (and if needed creates) the history database with
// the default pool and a quick integrity check.
func NewSqliteArchive(dbPath string) (*SqliteArchive, error) {
	return OpenSqliteArchive(dbPath, sqlite.DefaultConfig())
}

// OpenSqliteArchive opens the history database with cfg. An existing file
// is verified according to cfg.Integrity before use.
func OpenSqliteArchive(dbPath string, cfg sqlite.Config) (*SqliteArchive, error) {
	db, err := sqlite.Open(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("session archive: %w", err)
	}

	s := &SqliteArchive{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session archive: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteArchive) Close() error {
	return s.DB.Close()
}

func (s *SqliteArchive) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS session_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		ended_at_ms INTEGER NOT NULL,
		status_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON session_history(session_id, ended_at_ms);
	CREATE INDEX IF NOT EXISTS idx_history_ended ON session_history(ended_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteArchive) Put(ctx context.Context, rec Record) error {
	buf, err := json.Marshal(rec.Status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO session_history (session_id, reason, ended_at_ms, status_json) VALUES (?, ?, ?, ?)`,
		rec.SessionID, rec.Reason, rec.EndedAt.UnixMilli(), string(buf))
	return err
}

func (s *SqliteArchive) Latest(ctx context.Context, sessionID string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT session_id, reason, ended_at_ms, status_json FROM session_history
		 WHERE session_id = ? ORDER BY ended_at_ms DESC, id DESC LIMIT 1`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SqliteArchive) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT session_id, reason, ended_at_ms, status_json FROM session_history
		 ORDER BY ended_at_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec        Record
		endedAtMs  int64
		statusJSON string
	)
	if err := sc.Scan(&rec.SessionID, &rec.Reason, &endedAtMs, &statusJSON); err != nil {
		return nil, err
	}
	rec.EndedAt = time.UnixMilli(endedAtMs).UTC()
	if err := json.Unmarshal([]byte(statusJSON), &rec.Status); err != nil {
		return nil, fmt.Errorf("decode status of %s: %w", rec.SessionID, err)
	}
	return &rec, nil
}
