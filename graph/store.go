package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/stream"
)

// Options configures a Store.
type Options struct {
	// Persister receives a full snapshot after every mutation. Nil disables persistence.
	Persister core.SnapshotStore

	// Logger defaults to logging.NoOpLogger.
	Logger logging.Logger

	// EventBufferSize is the subscriber buffer used when Subscribe is called
	// with a non-positive size.
	EventBufferSize int

	// Clock returns creation timestamps. Defaults to core.Now.
	Clock func() time.Time

	// IDGenerator returns fresh node and edge ids. Defaults to core.NewID.
	IDGenerator func() string
}

// NodeOptions configures AddNode.
type NodeOptions struct {
	Description string
}

// EdgeOptions configures AddEdge.
type EdgeOptions struct {
	// Weight must lie in [0,1]. Defaults to 1.
	Weight   float64
	Metadata core.Metadata
}

// NodeUpdate is a partial update. Nil fields are left untouched; Metadata is
// merged shallowly into the existing map.
type NodeUpdate struct {
	Content     *string
	Description *string
	Metadata    core.Metadata
}

// Stats summarises the store.
type Stats struct {
	Nodes         int                   `json:"nodes"`
	Edges         int                   `json:"edges"`
	NodesByType   map[core.NodeType]int `json:"nodesByType"`
	DroppedEvents uint64                `json:"droppedEvents"`
}

// Store is the knowledge graph.
type Store struct {
	// writeMu serialises mutation, persistence and event publication.
	writeMu sync.Mutex

	// mu guards the maps below; held exclusively only while applying a mutation.
	mu        sync.RWMutex
	nodes     map[string]*core.Node
	nodeOrder []string
	edges     map[string]*core.Edge
	edgeOrder []string

	seq        uint64
	events     *stream.Broadcaster[core.GraphEvent]
	bufferSize int

	persister core.SnapshotStore
	logger    logging.Logger
	clock     func() time.Time
	newID     func() string
}

// New creates an empty store.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		EventBufferSize: stream.DefaultBufferSize,
		Clock:           core.Now,
		IDGenerator:     core.NewID,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		nodes:      make(map[string]*core.Node),
		edges:      make(map[string]*core.Edge),
		events:     stream.NewBroadcaster[core.GraphEvent](),
		bufferSize: opts.EventBufferSize,
		persister:  opts.Persister,
		logger:     logging.Scoped(opts.Logger, "graph"),
		clock:      opts.Clock,
		newID:      opts.IDGenerator,
	}
}

// Load creates a store and fills it from the persister. A persister holding
// no snapshot yields an empty store. Loading does not write back.
func Load(ctx context.Context, persister core.SnapshotStore, optFns ...func(o *Options)) (*Store, error) {
	s := New(append(slices.Clone(optFns), func(o *Options) { o.Persister = persister })...)

	if persister == nil {
		return s, nil
	}

	snap, err := persister.Read(ctx)
	if err != nil {
		return nil, asStorageError("read", err)
	}

	if snap == nil {
		return s, nil
	}

	if err := s.replace(*snap); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	s.logger.Info("Graph loaded", "nodes", len(snap.Nodes), "edges", len(snap.Edges))

	return s, nil
}

// AddNode creates a node and returns its id.
func (s *Store) AddNode(t core.NodeType, content string, md core.Metadata, optFns ...func(o *NodeOptions)) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidNodeType, t)
	}

	opts := NodeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n := &core.Node{
		ID:          s.newID(),
		Type:        t,
		Content:     content,
		Description: opts.Description,
		Timestamp:   s.clock(),
		Metadata:    md.Clone(),
		Connections: []string{},
	}

	s.mu.Lock()
	s.nodes[n.ID] = n
	s.nodeOrder = append(s.nodeOrder, n.ID)
	cp := n.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := s.commit(snap, core.GraphEvent{Kind: core.GraphNodeAdded, NodeID: n.ID, Node: &cp})

	return n.ID, err
}

// AddEdge links two existing nodes and returns the edge id. Both endpoints
// gain each other in Connections; repeated edges between the same pair are
// kept as distinct edges while Connections lists each peer once.
func (s *Store) AddEdge(from, to string, t core.EdgeType, optFns ...func(o *EdgeOptions)) (string, error) {
	opts := EdgeOptions{Weight: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	if math.IsNaN(opts.Weight) || opts.Weight < 0 || opts.Weight > 1 {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidWeight, opts.Weight)
	}

	if from == to {
		return "", &core.GraphReferenceError{From: from, To: to, Reason: "self edges are not allowed"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()

	src, ok := s.nodes[from]
	if !ok {
		s.mu.Unlock()
		return "", &core.GraphReferenceError{From: from, To: to, Missing: from}
	}

	dst, ok := s.nodes[to]
	if !ok {
		s.mu.Unlock()
		return "", &core.GraphReferenceError{From: from, To: to, Missing: to}
	}

	e := &core.Edge{
		ID:        s.newID(),
		From:      from,
		To:        to,
		Type:      t,
		Weight:    opts.Weight,
		Metadata:  opts.Metadata.Clone(),
		CreatedAt: s.clock(),
	}

	s.edges[e.ID] = e
	s.edgeOrder = append(s.edgeOrder, e.ID)
	link(src, to)
	link(dst, from)

	cp := e.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := s.commit(snap, core.GraphEvent{Kind: core.GraphEdgeAdded, EdgeID: e.ID, Edge: &cp})

	return e.ID, err
}

// RemoveEdge deletes an edge. The endpoints stay connected while another
// edge between them survives. Returns false for unknown ids.
func (s *Store) RemoveEdge(id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()

	e, ok := s.edges[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	s.deleteEdgeLocked(e)

	cp := e.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return true, s.commit(snap, core.GraphEvent{Kind: core.GraphEdgeRemoved, EdgeID: id, Edge: &cp})
}

// UpdateNode replaces content and description when given and merges metadata.
// Returns false for unknown ids.
func (s *Store) UpdateNode(id string, u NodeUpdate) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()

	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	if u.Content != nil {
		n.Content = *u.Content
	}

	if u.Description != nil {
		n.Description = *u.Description
	}

	n.Metadata.Merge(u.Metadata)

	cp := n.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return true, s.commit(snap, core.GraphEvent{Kind: core.GraphNodeUpdated, NodeID: id, Node: &cp})
}

// RemoveNode deletes a node together with every incident edge and purges its
// id from all peers. Returns false for unknown ids.
func (s *Store) RemoveNode(id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()

	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	var events []core.GraphEvent

	for _, eid := range slices.Clone(s.edgeOrder) {
		e := s.edges[eid]
		if !e.Touches(id) {
			continue
		}

		s.deleteEdgeLocked(e)

		cp := e.Clone()
		events = append(events, core.GraphEvent{Kind: core.GraphEdgeRemoved, EdgeID: eid, Edge: &cp})
	}

	delete(s.nodes, id)
	s.nodeOrder = slices.DeleteFunc(s.nodeOrder, func(v string) bool { return v == id })

	cp := n.Clone()
	events = append(events, core.GraphEvent{Kind: core.GraphNodeRemoved, NodeID: id, Node: &cp})

	snap := s.snapshotLocked()
	s.mu.Unlock()

	return true, s.commit(snap, events...)
}

// Clear empties the graph and persists the empty state.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.nodes = make(map[string]*core.Node)
	s.edges = make(map[string]*core.Edge)
	s.nodeOrder = nil
	s.edgeOrder = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.commit(snap, core.GraphEvent{Kind: core.GraphCleared})
}

// Export returns a deep copy of the graph suitable for persistence.
func (s *Store) Export() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

// Import replaces the whole graph with snap and persists it. The snapshot is
// validated first; an invalid snapshot leaves the store untouched.
func (s *Store) Import(ctx context.Context, snap core.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.replace(snap); err != nil {
		return err
	}

	s.mu.RLock()
	committed := s.snapshotLocked()
	s.mu.RUnlock()

	return s.commitContext(ctx, committed, core.GraphEvent{Kind: core.GraphImported})
}

// Subscribe returns a change event subscription. buffer <= 0 selects the
// store's configured buffer size.
func (s *Store) Subscribe(buffer int) *stream.Subscription[core.GraphEvent] {
	if buffer <= 0 {
		buffer = s.bufferSize
	}
	return s.events.Subscribe(buffer)
}

// Stats summarises the current graph.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Nodes:         len(s.nodes),
		Edges:         len(s.edges),
		NodesByType:   make(map[core.NodeType]int),
		DroppedEvents: s.events.Dropped(),
	}

	for _, n := range s.nodes {
		st.NodesByType[n.Type]++
	}

	return st
}

// Close ends all change subscriptions.
func (s *Store) Close() {
	s.events.Close()
}

func (s *Store) commit(snap core.Snapshot, events ...core.GraphEvent) error {
	return s.commitContext(context.Background(), snap, events...)
}

// commitContext persists snap and publishes events. Callers hold writeMu so
// writes reach the persister and subscribers in mutation order.
func (s *Store) commitContext(ctx context.Context, snap core.Snapshot, events ...core.GraphEvent) error {
	var err error
	if s.persister != nil {
		done := logging.StartTimer(s.logger, "graph.persist")
		if werr := s.persister.Write(ctx, snap); werr != nil {
			err = asStorageError("write", werr)
		}
		done()
	}

	now := s.clock()
	for _, ev := range events {
		s.seq++
		ev.Seq = s.seq
		ev.Timestamp = now
		s.events.Publish(ev)

		id := ev.NodeID
		if id == "" {
			id = ev.EdgeID
		}
		logging.LogGraphMutation(s.logger, string(ev.Kind), id, err)
	}

	return err
}

// replace validates snap and swaps it in. Caller holds writeMu.
func (s *Store) replace(snap core.Snapshot) error {
	nodes := make(map[string]*core.Node, len(snap.Nodes))
	nodeOrder := make([]string, 0, len(snap.Nodes))

	for _, n := range snap.Nodes {
		if n.ID == "" {
			return errors.New("node with empty id")
		}
		if !n.Type.Valid() {
			return fmt.Errorf("node %s: %w: %q", n.ID, core.ErrInvalidNodeType, n.Type)
		}
		if _, dup := nodes[n.ID]; dup {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		cp := n.Clone()
		nodes[n.ID] = &cp
		nodeOrder = append(nodeOrder, n.ID)
	}

	edges := make(map[string]*core.Edge, len(snap.Edges))
	edgeOrder := make([]string, 0, len(snap.Edges))
	expected := make(map[string][]string, len(nodes))

	for _, e := range snap.Edges {
		if e.ID == "" {
			return errors.New("edge with empty id")
		}
		if _, dup := edges[e.ID]; dup {
			return fmt.Errorf("duplicate edge id %s", e.ID)
		}
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("edge %s: %w: %v", e.ID, core.ErrInvalidWeight, e.Weight)
		}
		if e.From == e.To {
			return &core.GraphReferenceError{From: e.From, To: e.To, Reason: "self edges are not allowed"}
		}
		for _, end := range []string{e.From, e.To} {
			if _, ok := nodes[end]; !ok {
				return &core.GraphReferenceError{From: e.From, To: e.To, Missing: end}
			}
		}
		cp := e.Clone()
		edges[e.ID] = &cp
		edgeOrder = append(edgeOrder, e.ID)
		expected[e.From] = appendUnique(expected[e.From], e.To)
		expected[e.To] = appendUnique(expected[e.To], e.From)
	}

	// Keep the recorded connection order when it agrees with the edges so an
	// export/import round trip is lossless; rebuild it otherwise.
	for id, n := range nodes {
		want := expected[id]
		if !sameSet(n.Connections, want) {
			n.Connections = append(make([]string, 0, len(want)), want...)
		}
	}

	s.mu.Lock()
	s.nodes, s.nodeOrder = nodes, nodeOrder
	s.edges, s.edgeOrder = edges, edgeOrder
	s.mu.Unlock()

	return nil
}

// deleteEdgeLocked removes e and unlinks its endpoints unless another edge
// still joins them. Caller holds mu.
func (s *Store) deleteEdgeLocked(e *core.Edge) {
	delete(s.edges, e.ID)
	s.edgeOrder = slices.DeleteFunc(s.edgeOrder, func(v string) bool { return v == e.ID })

	for _, other := range s.edges {
		if other.Touches(e.From) && other.Touches(e.To) {
			return
		}
	}

	if n, ok := s.nodes[e.From]; ok {
		unlink(n, e.To)
	}
	if n, ok := s.nodes[e.To]; ok {
		unlink(n, e.From)
	}
}

func (s *Store) snapshotLocked() core.Snapshot {
	snap := core.Snapshot{
		Nodes:     make([]core.Node, 0, len(s.nodeOrder)),
		Edges:     make([]core.Edge, 0, len(s.edgeOrder)),
		Timestamp: s.clock(),
	}

	for _, id := range s.nodeOrder {
		snap.Nodes = append(snap.Nodes, s.nodes[id].Clone())
	}

	for _, id := range s.edgeOrder {
		snap.Edges = append(snap.Edges, s.edges[id].Clone())
	}

	return snap
}

func asStorageError(op string, err error) error {
	var se *core.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &core.StorageError{Op: op, Err: err}
}

func link(n *core.Node, peer string) {
	n.Connections = appendUnique(n.Connections, peer)
}

func unlink(n *core.Node, peer string) {
	n.Connections = slices.DeleteFunc(n.Connections, func(v string) bool { return v == peer })
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	for _, v := range b {
		if !slices.Contains(a, v) {
			return false
		}
	}
	return true
}
