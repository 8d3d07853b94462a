package storage

import (
	"context"
	"sync"

	"github.com/codai-ecosystem/codai/core"
)

// InMemoryStore is a process-local SnapshotStore. It keeps the encoded wire
// form of the last snapshot so reads go through the same decoding path as the
// durable backends. Suitable for tests and ephemeral sessions.
type InMemoryStore struct {
	mu     sync.RWMutex
	data   []byte
	writes int
}

var _ core.SnapshotStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory snapshot store.
func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

// Write replaces the stored snapshot.
func (m *InMemoryStore) Write(_ context.Context, snapshot core.Snapshot) error {
	data, err := core.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.writes++

	return nil
}

// Read returns the last written snapshot, or nil if none was written.
func (m *InMemoryStore) Read(_ context.Context) (*core.Snapshot, error) {
	m.mu.RLock()
	data := m.data
	m.mu.RUnlock()

	if data == nil {
		return nil, nil
	}

	return core.DecodeSnapshot(data)
}

// Writes returns the number of successful writes.
func (m *InMemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Close implements Store.
func (m *InMemoryStore) Close() error { return nil }
