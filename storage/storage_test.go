package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
)

func sampleSnapshot() core.Snapshot {
	ts := core.Now()
	return core.Snapshot{
		Nodes: []core.Node{{
			ID: "n1", Type: core.NodeIntent, Content: "Build a todo app", Timestamp: ts,
			Metadata: core.Metadata{"conversation_turn": core.Bool(true)}, Connections: []string{"n2"},
		}, {
			ID: "n2", Type: core.NodeFeature, Content: "Todo list", Timestamp: ts,
			Metadata: core.Metadata{"priority": core.Number(2)}, Connections: []string{"n1"},
		}},
		Edges: []core.Edge{{
			ID: "e1", From: "n2", To: "n1", Type: core.EdgeImplements, Weight: 0.5,
			Metadata: core.Metadata{}, CreatedAt: ts,
		}},
		Timestamp: ts,
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		DriverMemory: NewInMemoryStore(),
		DriverFile:   NewFileStore(filepath.Join(dir, "nested", "graph.json")),
		DriverSQLite: sqlite,
	}
}

func TestStores_EmptyReadReturnsNil(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := s.Read(context.Background())
			require.NoError(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestStores_RoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleSnapshot()

			require.NoError(t, s.Write(ctx, want))
			got, err := s.Read(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want, *got)
		})
	}
}

func TestStores_OverwriteKeepsLatest(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := sampleSnapshot()
			second := sampleSnapshot()
			second.Nodes = second.Nodes[:1]
			second.Nodes[0].Connections = []string{}
			second.Edges = []core.Edge{}

			require.NoError(t, s.Write(ctx, first))
			require.NoError(t, s.Write(ctx, second))

			got, err := s.Read(ctx)
			require.NoError(t, err)
			require.Len(t, got.Nodes, 1)
			assert.Empty(t, got.Edges)
		})
	}
}

func TestInMemoryStore_CountsWrites(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Write(context.Background(), sampleSnapshot()))
	require.NoError(t, s.Write(context.Background(), sampleSnapshot()))
	assert.Equal(t, 2, s.Writes())
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "graph.json"))
	require.NoError(t, s.Write(context.Background(), sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "graph.json", entries[0].Name())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Read(context.Background())
	assert.Error(t, err)
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileStore(filepath.Join(t.TempDir(), "g.json")).Write(ctx, sampleSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, sampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Nodes, 2)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)

	s, err = Open(ctx, DriverFile, filepath.Join(t.TempDir(), "g.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, DriverFile, "")
	assert.Error(t, err)

	_, err = Open(ctx, "postgres", "x")
	assert.Error(t, err)
}
