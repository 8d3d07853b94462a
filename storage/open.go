package storage

import (
	"context"
	"fmt"

	"github.com/codai-ecosystem/codai/core"
)

// Supported storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Store is a SnapshotStore holding resources that must be released.
type Store interface {
	core.SnapshotStore
	Close() error
}

// Open returns the store selected by driver. An empty driver selects memory.
func Open(ctx context.Context, driver, path string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewInMemoryStore(), nil
	case DriverFile:
		if path == "" {
			return nil, fmt.Errorf("storage driver %q requires a path", driver)
		}
		return NewFileStore(path), nil
	case DriverSQLite:
		if path == "" {
			return nil, fmt.Errorf("storage driver %q requires a path", driver)
		}
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
