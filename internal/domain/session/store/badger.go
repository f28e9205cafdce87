// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

// BadgerArchive stores one JSON record per key:
// "hist:<session_id>:<ended_at_unix_nano, zero padded>". Session IDs never
// contain ':' so a per-session prefix scan is exact.
type BadgerArchive struct {
	db *badger.DB
}

func OpenBadgerArchive(path string) (*BadgerArchive, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerArchive{db: db}, nil
}

func (s *BadgerArchive) Close() error { return s.db.Close() }

func historyPrefix(sessionID string) []byte {
	return []byte("hist:" + sessionID + ":")
}

func historyKey(rec Record) []byte {
	return fmt.Appendf(historyPrefix(rec.SessionID), "%020d", rec.EndedAt.UnixNano())
}

func (s *BadgerArchive) Put(_ context.Context, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(rec), buf)
	})
}

func (s *BadgerArchive) Latest(_ context.Context, sessionID string) (*Record, error) {
	prefix := historyPrefix(sessionID)
	var out *Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the greatest key <= seek.
		it.Seek(append(slices.Clone(prefix), 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var rec Record
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *BadgerArchive) List(_ context.Context, limit int) ([]Record, error) {
	prefix := []byte("hist:")
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		return b.EndedAt.Compare(a.EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
