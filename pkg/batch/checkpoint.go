// Package batch implements the C5 batch orchestrator: a cursor-driven
// walk of the source table, one C6 subprocess per batch, verification,
// and a crash-safe checkpoint file.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Checkpoint persists the highest fully-processed source-row ID to a
// small file, written atomically via write-to-temp-then-rename — the only
// durable state this control plane owns (pkg/db/sqlite.go's directory
// creation pattern, adapted from a database file to a cursor file).
type Checkpoint struct {
	path string
}

func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// Load reads the cursor. A missing file means cursor = 0 (spec.md §3).
func (c *Checkpoint) Load() (int64, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading checkpoint file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing checkpoint file contents %q: %w", text, err)
	}
	return cursor, nil
}

// Save writes cursor atomically: it writes to a sibling temp file, fsyncs,
// then renames over the target so a crash mid-write never corrupts the
// previous value.
func (c *Checkpoint) Save(cursor int64) error {
	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(strconv.FormatInt(cursor, 10)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp checkpoint file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming checkpoint file into place: %w", err)
	}
	return nil
}
