package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotFile persists a JSON document, replacing it atomically on every
// save. It satisfies memory.Persister.
type SnapshotFile[T any] struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotFile returns a persister writing to path.
func NewSnapshotFile[T any](path string) *SnapshotFile[T] {
	return &SnapshotFile[T]{path: path}
}

// Load reads the snapshot. A missing file reports ok=false.
func (f *SnapshotFile[T]) Load(_ context.Context) (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out T
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return out, true, nil
}

// Save writes the snapshot to a temp file and renames it over the target.
func (f *SnapshotFile[T]) Save(_ context.Context, snapshot T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
