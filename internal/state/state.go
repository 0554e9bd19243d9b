// Package state persists the CLI's last known paths in a JSON sidecar file.
// Only the CLI layer reads or writes it; the migrator receives already
// resolved paths.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/qri-io/jsonschema"
)

// Backup is one recorded backup file.
type Backup struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Created int64  `json:"created"`
}

// State is the persisted sidecar content.
type State struct {
	DatabasePath string   `json:"database_path"`
	LatestBackup string   `json:"latest_backup,omitempty"`
	Backups      []Backup `json:"backups,omitempty"`
}

var stateSchema = []byte(`{
	"type": "object",
	"required": ["database_path"],
	"properties": {
		"database_path": {"type": "string"},
		"latest_backup": {"type": "string"},
		"backups": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "path", "created"],
				"properties": {
					"id": {"type": "string"},
					"path": {"type": "string"},
					"created": {"type": "integer"}
				}
			}
		}
	}
}`)

// Load reads the sidecar at path. A missing file is not an error; it yields
// an empty State. The file is validated against the sidecar schema before
// decoding so a hand-edited file fails loudly instead of half-loading.
func Load(ctx context.Context, path string) (*State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(stateSchema, rs); err != nil {
		return nil, fmt.Errorf("compile state schema: %w", err)
	}
	verrs, err := rs.ValidateBytes(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("validate state file: %w", err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("state file %s is malformed: %s", path, verrs[0].Message)
	}

	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	return &s, nil
}

// Save writes the sidecar, creating its directory if needed.
func Save(path string, s *State) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// RecordBackup marks path as the latest backup and appends it to the history
// with a fresh id.
func (s *State) RecordBackup(path string) {
	s.LatestBackup = path
	s.Backups = append(s.Backups, Backup{
		ID:      uuid.NewString(),
		Path:    path,
		Created: time.Now().Unix(),
	})
}
