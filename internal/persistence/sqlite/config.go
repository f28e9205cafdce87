// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sqlite opens SQLite databases with the pragmas every store relies on.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	// Integrity is the check run on an existing file before it is opened.
	Integrity IntegrityMode
}

// DefaultConfig suits a low-write history table read by the management API.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
		Integrity:    IntegrityQuick,
	}
}

func (c Config) validate() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("sqlite: max open conns must be at least 1, got %d", c.MaxOpenConns)
	}
	if _, err := ParseIntegrityMode(string(c.Integrity)); err != nil {
		return err
	}
	return nil
}

// Open initializes a connection pool with WAL journaling and busy_timeout.
// Pragmas go in the DSN so they apply to every pooled connection. An
// existing file is verified first according to cfg.Integrity; a new file
// is created without a check.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Integrity != IntegrityOff {
		if _, err := os.Stat(dbPath); err == nil {
			issues, err := VerifyIntegrity(dbPath, cfg.Integrity)
			if err != nil {
				return nil, fmt.Errorf("sqlite: integrity check: %w", err)
			}
			if len(issues) > 0 {
				return nil, &CorruptError{Path: dbPath, Issues: issues}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sqlite: stat %s: %w", dbPath, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
