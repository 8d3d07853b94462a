package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codai-ecosystem/codai/core"
)

const (
	createSnapshotsTable = `CREATE TABLE IF NOT EXISTS graph_snapshots (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

	upsertSnapshot = `INSERT INTO graph_snapshots (id, data, updated_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	selectSnapshot = `SELECT data FROM graph_snapshots WHERE id = 1`
)

// SQLiteStore keeps the snapshot in a single-row SQLite table. The database
// runs in WAL mode with a busy timeout so a CLI and a server process can share
// the file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ core.SnapshotStore = (*SQLiteStore)(nil)

// OpenSQLite opens (and migrates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, createSnapshotsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Write upserts the snapshot row.
func (s *SQLiteStore) Write(ctx context.Context, snapshot core.Snapshot) error {
	data, err := core.EncodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, upsertSnapshot, string(data), core.Now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write snapshot to %s: %w", s.path, err)
	}

	return nil
}

// Read returns the stored snapshot, or nil if the table is empty.
func (s *SQLiteStore) Read(ctx context.Context) (*core.Snapshot, error) {
	var data string

	err := s.db.QueryRowContext(ctx, selectSnapshot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot from %s: %w", s.path, err)
	}

	snap, err := core.DecodeSnapshot([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot from %s: %w", s.path, err)
	}

	return snap, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
