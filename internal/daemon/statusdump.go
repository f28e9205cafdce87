package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// StatusDump is the file written on shutdown with the last view of every session.
type StatusDump struct {
	Version   string         `json:"version"`
	WrittenAt time.Time      `json:"written_at"`
	Sessions  []model.Status `json:"sessions"`
}

// WriteStatusDump replaces path atomically with dump.
func WriteStatusDump(path string, dump StatusDump) error {
	if dump.Sessions == nil {
		dump.Sessions = []model.Status{}
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status dump: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create status dump dir: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("write status dump: %w", err)
	}
	return nil
}
