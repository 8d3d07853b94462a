package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
)

type memPersister struct {
	mu     sync.Mutex
	snap   *core.Snapshot
	writes int
}

func (m *memPersister) Write(_ context.Context, s core.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := core.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	m.snap, err = core.DecodeSnapshot(b)
	m.writes++
	return err
}

func (m *memPersister) Read(context.Context) (*core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

type mockPersister struct{ mock.Mock }

func (m *mockPersister) Write(ctx context.Context, s core.Snapshot) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockPersister) Read(ctx context.Context) (*core.Snapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*core.Snapshot)
	return snap, args.Error(1)
}

func mustNode(t *testing.T, s *Store, nt core.NodeType, content string) string {
	t.Helper()
	id, err := s.AddNode(nt, content, nil)
	require.NoError(t, err)
	return id
}

func mustEdge(t *testing.T, s *Store, from, to string, et core.EdgeType) string {
	t.Helper()
	id, err := s.AddEdge(from, to, et)
	require.NoError(t, err)
	return id
}

func assertSymmetric(t *testing.T, s *Store) {
	t.Helper()
	data := s.GetGraphData()
	byID := map[string]core.Node{}
	for _, n := range data.Nodes {
		byID[n.ID] = n
	}
	for _, e := range data.Edges {
		assert.Contains(t, byID[e.From].Connections, e.To)
		assert.Contains(t, byID[e.To].Connections, e.From)
	}
	for _, n := range data.Nodes {
		for _, peer := range n.Connections {
			assert.Contains(t, byID[peer].Connections, n.ID, "asymmetric link %s -> %s", n.ID, peer)
		}
	}
}

func TestStore_AddNode(t *testing.T) {
	p := &memPersister{}
	s := New(func(o *Options) { o.Persister = p })

	id, err := s.AddNode(core.NodeFeature, "Auth", core.Metadata{"owner": core.String("ana")},
		func(o *NodeOptions) { o.Description = "login and signup" })
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, ok := s.GetNode(id)
	require.True(t, ok)
	assert.Equal(t, core.NodeFeature, n.Type)
	assert.Equal(t, "Auth", n.Content)
	assert.Equal(t, "login and signup", n.Description)
	assert.False(t, n.Timestamp.IsZero())
	assert.NotNil(t, n.Connections)
	assert.Equal(t, 1, p.writes)

	_, err = s.AddNode("widget", "x", nil)
	assert.ErrorIs(t, err, core.ErrInvalidNodeType)
	assert.Equal(t, 1, p.writes)
}

func TestStore_GetNodeReturnsCopy(t *testing.T) {
	s := New()
	id, err := s.AddNode(core.NodeLogic, "x", core.Metadata{"k": core.String("v")})
	require.NoError(t, err)

	n, _ := s.GetNode(id)
	n.Metadata["k"] = core.String("changed")
	n.Connections = append(n.Connections, "bogus")

	again, _ := s.GetNode(id)
	v, _ := again.Metadata.GetString("k")
	assert.Equal(t, "v", v)
	assert.Empty(t, again.Connections)
}

func TestStore_ConnectedNodesScenario(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "Auth")
	b := mustNode(t, s, core.NodeScreen, "Login")
	mustEdge(t, s, a, b, core.EdgeContains)

	connected := s.GetConnectedNodes(a)
	require.Len(t, connected, 1)
	assert.Equal(t, b, connected[0].ID)

	back := s.GetConnectedNodes(b)
	require.Len(t, back, 1)
	assert.Equal(t, a, back[0].ID)
	assertSymmetric(t, s)
}

func TestStore_RemoveNodeCascades(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "Auth")
	b := mustNode(t, s, core.NodeScreen, "Login")
	c := mustNode(t, s, core.NodeAPI, "POST /login")
	mustEdge(t, s, a, b, core.EdgeContains)
	mustEdge(t, s, b, c, core.EdgeUses)
	mustEdge(t, s, c, a, core.EdgeImplements)

	ok, err := s.RemoveNode(a)
	require.NoError(t, err)
	assert.True(t, ok)

	nb, _ := s.GetNode(b)
	assert.Equal(t, []string{c}, nb.Connections)

	for _, e := range s.GetGraphData().Edges {
		assert.False(t, e.Touches(a))
	}
	for _, n := range s.GetGraphData().Nodes {
		assert.NotContains(t, n.Connections, a)
	}

	ok, err = s.RemoveNode(a)
	require.NoError(t, err)
	assert.False(t, ok)
	assertSymmetric(t, s)
}

func TestStore_RemoveNodeLeavesPeerEmpty(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "Auth")
	b := mustNode(t, s, core.NodeScreen, "Login")
	mustEdge(t, s, a, b, core.EdgeContains)

	_, err := s.RemoveNode(a)
	require.NoError(t, err)

	nb, ok := s.GetNode(b)
	require.True(t, ok)
	assert.Empty(t, nb.Connections)
}

func TestStore_AddEdgeValidation(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "a")

	_, err := s.AddEdge(a, "missing", core.EdgeUses)
	var ref *core.GraphReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "missing", ref.Missing)
	assert.ErrorIs(t, err, core.ErrGraphReference)

	_, err = s.AddEdge(a, a, core.EdgeUses)
	assert.ErrorIs(t, err, core.ErrGraphReference)

	b := mustNode(t, s, core.NodeFeature, "b")
	_, err = s.AddEdge(a, b, core.EdgeUses, func(o *EdgeOptions) { o.Weight = 1.5 })
	assert.ErrorIs(t, err, core.ErrInvalidWeight)

	assert.Empty(t, s.GetGraphData().Edges)
	na, _ := s.GetNode(a)
	assert.Empty(t, na.Connections)
}

func TestStore_DuplicateEdgesAccumulate(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "a")
	b := mustNode(t, s, core.NodeFeature, "b")

	e1 := mustEdge(t, s, a, b, core.EdgeDependsOn)
	e2 := mustEdge(t, s, a, b, core.EdgeDependsOn)
	assert.NotEqual(t, e1, e2)
	assert.Len(t, s.GetGraphData().Edges, 2)

	na, _ := s.GetNode(a)
	assert.Equal(t, []string{b}, na.Connections)

	ok, err := s.RemoveEdge(e1)
	require.NoError(t, err)
	assert.True(t, ok)
	na, _ = s.GetNode(a)
	assert.Equal(t, []string{b}, na.Connections, "still linked through the duplicate")

	_, err = s.RemoveEdge(e2)
	require.NoError(t, err)
	na, _ = s.GetNode(a)
	nb, _ := s.GetNode(b)
	assert.Empty(t, na.Connections)
	assert.Empty(t, nb.Connections)

	ok, err = s.RemoveEdge(e2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_EdgeDefaults(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "a")
	b := mustNode(t, s, core.NodeFeature, "b")

	id, err := s.AddEdge(a, b, "custom_link", func(o *EdgeOptions) {
		o.Weight = 0.25
		o.Metadata = core.Metadata{"why": core.String("test")}
	})
	require.NoError(t, err)

	e, ok := s.GetEdge(id)
	require.True(t, ok)
	assert.Equal(t, core.EdgeType("custom_link"), e.Type)
	assert.Equal(t, 0.25, e.Weight)
	assert.Equal(t, a, e.From)

	id2 := mustEdge(t, s, b, a, core.EdgeRelatesTo)
	e2, _ := s.GetEdge(id2)
	assert.Equal(t, 1.0, e2.Weight)
	assert.NotNil(t, e2.Metadata)

	assert.Len(t, s.EdgesOf(a), 2)
}

func TestStore_UpdateNodeMergesMetadata(t *testing.T) {
	s := New()
	id, err := s.AddNode(core.NodeDecision, "use postgres", core.Metadata{"a": core.String("1"), "b": core.Bool(true)})
	require.NoError(t, err)

	content := "use sqlite"
	ok, err := s.UpdateNode(id, NodeUpdate{Content: &content, Metadata: core.Metadata{"a": core.String("2"), "c": core.Number(3)}})
	require.NoError(t, err)
	assert.True(t, ok)

	n, _ := s.GetNode(id)
	assert.Equal(t, "use sqlite", n.Content)
	assert.Equal(t, core.Metadata{"a": core.String("2"), "b": core.Bool(true), "c": core.Number(3)}, n.Metadata)

	ok, err = s.UpdateNode(id, NodeUpdate{})
	require.NoError(t, err)
	assert.True(t, ok)
	n, _ = s.GetNode(id)
	assert.Equal(t, "use sqlite", n.Content)

	ok, err = s.UpdateNode("missing", NodeUpdate{Content: &content})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_QueriesKeepInsertionOrder(t *testing.T) {
	s := New()
	f1 := mustNode(t, s, core.NodeFeature, "Payments")
	mustNode(t, s, core.NodeScreen, "Checkout")
	f2 := mustNode(t, s, core.NodeFeature, "Profile")
	id, err := s.AddNode(core.NodeDecision, "storage", core.Metadata{"note": core.String("PAYMENT provider"), "n": core.Number(1)})
	require.NoError(t, err)

	features := s.GetNodesByType(core.NodeFeature)
	require.Len(t, features, 2)
	assert.Equal(t, f1, features[0].ID)
	assert.Equal(t, f2, features[1].ID)

	found := s.SearchNodes("payment")
	require.Len(t, found, 2)
	assert.Equal(t, f1, found[0].ID)
	assert.Equal(t, id, found[1].ID)

	assert.Empty(t, s.SearchNodes("nothing like this"))
	assert.Empty(t, s.GetNodesByType(core.NodeTest))
	assert.Empty(t, s.GetConnectedNodes("missing"))
}

func TestStore_Subgraph(t *testing.T) {
	s := New()
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = mustNode(t, s, core.NodeLogic, fmt.Sprintf("n%d", i))
	}
	// chain n0 - n1 - n2 - n3 - n4 plus a cycle n2 - n0
	for i := 0; i < 4; i++ {
		mustEdge(t, s, ids[i], ids[i+1], core.EdgeDependsOn)
	}
	mustEdge(t, s, ids[2], ids[0], core.EdgeRelatesTo)

	one := s.Subgraph(ids[0], 1)
	assert.Len(t, one.Nodes, 3) // n0, n1, n2
	assert.Len(t, one.Edges, 3)

	all := s.Subgraph(ids[0], 99)
	assert.Len(t, all.Nodes, 5)
	assert.Len(t, all.Edges, 5)

	clamped := s.Subgraph(ids[4], 0)
	assert.Len(t, clamped.Nodes, 2)

	empty := s.Subgraph("missing", 2)
	assert.NotNil(t, empty.Nodes)
	assert.Empty(t, empty.Nodes)
}

func TestStore_Clear(t *testing.T) {
	p := &memPersister{}
	s := New(func(o *Options) { o.Persister = p })
	a := mustNode(t, s, core.NodeFeature, "a")
	b := mustNode(t, s, core.NodeFeature, "b")
	mustEdge(t, s, a, b, core.EdgeUses)

	require.NoError(t, s.Clear())
	data := s.GetGraphData()
	assert.Empty(t, data.Nodes)
	assert.Empty(t, data.Edges)

	snap, err := p.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Nodes)
}

func buildSixNodeGraph(t *testing.T, s *Store) {
	t.Helper()
	types := []core.NodeType{core.NodeIntent, core.NodeFeature, core.NodeScreen, core.NodeAPI, core.NodeDataModel, core.NodeTest}
	ids := make([]string, len(types))
	for i, nt := range types {
		id, err := s.AddNode(nt, fmt.Sprintf("%s node", nt), core.Metadata{"idx": core.Number(float64(i)), "flag": core.Bool(i%2 == 0)})
		require.NoError(t, err)
		ids[i] = id
	}
	mustEdge(t, s, ids[1], ids[0], core.EdgeImplements)
	mustEdge(t, s, ids[1], ids[2], core.EdgeContains)
	mustEdge(t, s, ids[2], ids[3], core.EdgeUses)
	mustEdge(t, s, ids[3], ids[4], core.EdgeDependsOn)
	_, err := s.AddEdge(ids[5], ids[1], core.EdgeTests, func(o *EdgeOptions) { o.Weight = 0.5 })
	require.NoError(t, err)
}

func TestStore_ExportReloadRoundTrip(t *testing.T) {
	p := &memPersister{}
	s := New(func(o *Options) { o.Persister = p })
	buildSixNodeGraph(t, s)

	fresh, err := Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, s.GetGraphData(), fresh.GetGraphData())

	// Through the wire format as well.
	b, err := core.EncodeSnapshot(s.Export())
	require.NoError(t, err)
	snap, err := core.DecodeSnapshot(b)
	require.NoError(t, err)

	other := New()
	require.NoError(t, other.Import(context.Background(), *snap))
	assert.Equal(t, s.GetGraphData(), other.GetGraphData())
}

func TestStore_ImportKeepsConnectionOrderWithDuplicates(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "a")
	b := mustNode(t, s, core.NodeFeature, "b")
	c := mustNode(t, s, core.NodeFeature, "c")
	e1 := mustEdge(t, s, a, b, core.EdgeUses)
	mustEdge(t, s, a, c, core.EdgeUses)
	mustEdge(t, s, a, b, core.EdgeUses)
	_, err := s.RemoveEdge(e1)
	require.NoError(t, err)

	other := New()
	require.NoError(t, other.Import(context.Background(), s.Export()))
	assert.Equal(t, s.GetGraphData(), other.GetGraphData())
}

func TestStore_ImportRejectsDanglingEdge(t *testing.T) {
	s := New()
	a := mustNode(t, s, core.NodeFeature, "a")

	snap := core.Snapshot{
		Nodes: []core.Node{{ID: "x", Type: core.NodeFeature, Metadata: core.Metadata{}, Connections: []string{}}},
		Edges: []core.Edge{{ID: "e", From: "x", To: "y", Type: core.EdgeUses, Weight: 1}},
	}
	err := s.Import(context.Background(), snap)
	assert.ErrorIs(t, err, core.ErrGraphReference)

	_, ok := s.GetNode(a)
	assert.True(t, ok, "failed import leaves the store untouched")
}

func TestStore_ImportRepairsConnections(t *testing.T) {
	s := New()
	snap := core.Snapshot{
		Nodes: []core.Node{
			{ID: "a", Type: core.NodeFeature, Connections: []string{"zzz"}},
			{ID: "b", Type: core.NodeFeature},
		},
		Edges: []core.Edge{{ID: "e", From: "a", To: "b", Type: core.EdgeUses, Weight: 1}},
	}
	require.NoError(t, s.Import(context.Background(), snap))

	a, _ := s.GetNode("a")
	b, _ := s.GetNode("b")
	assert.Equal(t, []string{"b"}, a.Connections)
	assert.Equal(t, []string{"a"}, b.Connections)
}

func TestStore_LoadEmptyPersister(t *testing.T) {
	s, err := Load(context.Background(), &memPersister{})
	require.NoError(t, err)
	assert.Empty(t, s.GetGraphData().Nodes)

	p := &mockPersister{}
	p.On("Read", mock.Anything).Return(nil, errors.New("unreachable"))
	_, err = Load(context.Background(), p)
	assert.ErrorIs(t, err, core.ErrStorage)
	p.AssertExpectations(t)
}

func TestStore_StorageErrorKeepsInMemoryChange(t *testing.T) {
	p := &mockPersister{}
	p.On("Write", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	s := New(func(o *Options) { o.Persister = p })

	id, err := s.AddNode(core.NodeIntent, "build a todo app", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)

	var se *core.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "write", se.Op)

	_, ok := s.GetNode(id)
	assert.True(t, ok)
	p.AssertNumberOfCalls(t, "Write", 1)
}

func TestStore_ConcurrentAddNode(t *testing.T) {
	p := &memPersister{}
	s := New(func(o *Options) { o.Persister = p })

	const workers = 32
	ids := make([]string, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.AddNode(core.NodeFeature, fmt.Sprintf("f%d", i), nil)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	unique := map[string]bool{}
	for _, id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, workers)

	data := s.GetGraphData()
	assert.Len(t, data.Nodes, workers)
	assert.Len(t, p.snap.Nodes, workers, "last persisted snapshot holds every node")
}

func TestStore_ConcurrentReadersSeeSymmetricState(t *testing.T) {
	s := New()
	hub := mustNode(t, s, core.NodeFeature, "hub")

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := range 50 {
			id, err := s.AddNode(core.NodeLogic, fmt.Sprintf("l%d", i), nil)
			assert.NoError(t, err)
			_, err = s.AddEdge(hub, id, core.EdgeContains)
			assert.NoError(t, err)
			if i%3 == 0 {
				_, err = s.RemoveNode(id)
				assert.NoError(t, err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			assertSymmetric(t, s)
		}
	}()

	wg.Wait()
	assertSymmetric(t, s)
}

func TestStore_EventsInIssuanceOrder(t *testing.T) {
	s := New()
	sub := s.Subscribe(64)
	defer sub.Cancel()

	a := mustNode(t, s, core.NodeFeature, "a")
	b := mustNode(t, s, core.NodeScreen, "b")
	e := mustEdge(t, s, a, b, core.EdgeContains)
	content := "a2"
	_, err := s.UpdateNode(a, NodeUpdate{Content: &content})
	require.NoError(t, err)
	_, err = s.RemoveNode(a)
	require.NoError(t, err)

	var got []core.GraphEvent
	for len(got) < 6 {
		got = append(got, <-sub.C())
	}

	kinds := make([]core.GraphEventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	assert.Equal(t, []core.GraphEventKind{
		core.GraphNodeAdded, core.GraphNodeAdded, core.GraphEdgeAdded,
		core.GraphNodeUpdated, core.GraphEdgeRemoved, core.GraphNodeRemoved,
	}, kinds)
	assert.Equal(t, e, got[4].EdgeID)
	assert.Equal(t, "a2", got[3].Node.Content)
}

func TestStore_SlowSubscriberDoesNotLoseState(t *testing.T) {
	s := New()
	sub := s.Subscribe(2)
	defer sub.Cancel()

	for i := range 10 {
		mustNode(t, s, core.NodeTest, fmt.Sprintf("t%d", i))
	}

	assert.Len(t, s.GetGraphData().Nodes, 10)
	assert.Equal(t, uint64(8), sub.Dropped())
	assert.Equal(t, uint64(8), s.Stats().DroppedEvents)
	assert.Equal(t, 10, s.Stats().NodesByType[core.NodeTest])
}

func TestStore_MutationsLoggedPerEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.LogLevelDebug
	cfg.Output = buf
	s := New(func(o *Options) {
		o.Logger = logging.NewLogger(cfg)
		o.Persister = &memPersister{}
	})

	a := mustNode(t, s, core.NodeIntent, "a")
	b := mustNode(t, s, core.NodeFeature, "b")
	mustEdge(t, s, b, a, core.EdgeImplements)

	var kinds, ops []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "graph", entry["component"])
		switch entry["msg"] {
		case "Graph mutation":
			kinds = append(kinds, entry["kind"].(string))
		case "Operation completed":
			ops = append(ops, entry["operation"].(string))
		}
	}

	assert.Equal(t, []string{"node_added", "node_added", "edge_added"}, kinds)
	assert.Len(t, ops, 3)
	assert.Equal(t, "graph.persist", ops[0])
}
