package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/graph"
)

// GraphBuilder provides a fluent helper for populating a graph in tests.
// Nodes are addressed by test-local names.
//
//	ids := NewGraphBuilder(t, g).Node("auth", core.NodeFeature, "Auth").
//		Node("login", core.NodeScreen, "Login").Edge("auth", "login", core.EdgeContains).IDs()
type GraphBuilder struct {
	t   testing.TB
	g   *graph.Store
	ids map[string]string
}

// NewGraphBuilder creates a builder writing to g.
func NewGraphBuilder(t testing.TB, g *graph.Store) *GraphBuilder {
	return &GraphBuilder{t: t, g: g, ids: map[string]string{}}
}

// Node adds a node under name (chainable).
func (b *GraphBuilder) Node(name string, typ core.NodeType, content string) *GraphBuilder {
	b.t.Helper()
	id, err := b.g.AddNode(typ, content, nil)
	require.NoError(b.t, err)
	b.ids[name] = id
	return b
}

// Edge links two named nodes (chainable).
func (b *GraphBuilder) Edge(from, to string, typ core.EdgeType) *GraphBuilder {
	b.t.Helper()
	_, err := b.g.AddEdge(b.ids[from], b.ids[to], typ)
	require.NoError(b.t, err)
	return b
}

// ID returns the id of a named node.
func (b *GraphBuilder) ID(name string) string { return b.ids[name] }

// IDs returns the name to id mapping.
func (b *GraphBuilder) IDs() map[string]string { return b.ids }
