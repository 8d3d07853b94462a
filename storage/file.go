package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/codai-ecosystem/codai/core"
)

// FileStore persists the snapshot as a JSON file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target, so
// readers observe either the previous or the new snapshot.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ core.SnapshotStore = (*FileStore)(nil)

// NewFileStore creates a store writing to path. The parent directory is
// created on first write.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Path returns the snapshot file location.
func (f *FileStore) Path() string { return f.path }

// Write atomically replaces the snapshot file.
func (f *FileStore) Write(ctx context.Context, snapshot core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := core.EncodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}

	return nil
}

// Read loads the snapshot file. A missing file yields (nil, nil).
func (f *FileStore) Read(ctx context.Context) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	return snap, nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }
