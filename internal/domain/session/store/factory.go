// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"fmt"

	"github.com/ManuGH/robohub-inference/internal/persistence/sqlite"
)

// Option tunes backend-specific settings of OpenArchive.
type Option func(*sqlite.Config)

// WithSqlitePool sets the connection pool size of the sqlite backend.
// Zero keeps the default.
func WithSqlitePool(n int) Option {
	return func(c *sqlite.Config) {
		if n != 0 {
			c.MaxOpenConns = n
		}
	}
}

// WithIntegrityCheck selects the check run on an existing sqlite file.
func WithIntegrityCheck(mode sqlite.IntegrityMode) Option {
	return func(c *sqlite.Config) {
		if mode != "" {
			c.Integrity = mode
		}
	}
}

// OpenArchive creates an Archive based on the backend configuration.
// Options only affect the sqlite backend.
func OpenArchive(backend, path string, opts ...Option) (Archive, error) {
	if backend == "" {
		backend = "memory"
	}

	switch backend {
	case "memory":
		return NewMemoryArchive(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite archive requires a path")
		}
		cfg := sqlite.DefaultConfig()
		for _, o := range opts {
			o(&cfg)
		}
		return OpenSqliteArchive(path, cfg)
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("badger archive requires a directory")
		}
		return OpenBadgerArchive(path)
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", backend)
	}
}
