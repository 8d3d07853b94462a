package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the persisted form of a graph. On the wire nodes and edges are
// encoded as [id, value] pairs and every time.Time as an ISO-8601 string.
type Snapshot struct {
	Nodes     []Node
	Edges     []Edge
	Timestamp time.Time
}

type snapshotWire struct {
	Nodes     []json.RawMessage `json:"nodes"`
	Edges     []json.RawMessage `json:"edges"`
	Timestamp time.Time         `json:"timestamp"`
}

// MarshalJSON encodes the snapshot as {nodes: [[id, Node]...], edges: [[id, Edge]...], timestamp}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotWire{
		Nodes:     make([]json.RawMessage, 0, len(s.Nodes)),
		Edges:     make([]json.RawMessage, 0, len(s.Edges)),
		Timestamp: s.Timestamp,
	}

	for _, n := range s.Nodes {
		b, err := json.Marshal([2]any{n.ID, n})
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		w.Nodes = append(w.Nodes, b)
	}

	for _, e := range s.Edges {
		b, err := json.Marshal([2]any{e.ID, e})
		if err != nil {
			return nil, fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		w.Edges = append(w.Edges, b)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the pair encoded wire format.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Snapshot{
		Nodes:     make([]Node, 0, len(w.Nodes)),
		Edges:     make([]Edge, 0, len(w.Edges)),
		Timestamp: w.Timestamp,
	}

	for i, raw := range w.Nodes {
		var pair [2]json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return fmt.Errorf("decode node entry %d: %w", i, err)
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return fmt.Errorf("decode node entry %d id: %w", i, err)
		}
		var n Node
		if err := json.Unmarshal(pair[1], &n); err != nil {
			return fmt.Errorf("decode node %s: %w", id, err)
		}
		if n.ID != id {
			return fmt.Errorf("node entry %d: key %q does not match id %q", i, id, n.ID)
		}
		out.Nodes = append(out.Nodes, n.Clone())
	}

	for i, raw := range w.Edges {
		var pair [2]json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return fmt.Errorf("decode edge entry %d: %w", i, err)
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return fmt.Errorf("decode edge entry %d id: %w", i, err)
		}
		var e Edge
		if err := json.Unmarshal(pair[1], &e); err != nil {
			return fmt.Errorf("decode edge %s: %w", id, err)
		}
		if e.ID != id {
			return fmt.Errorf("edge entry %d: key %q does not match id %q", i, id, e.ID)
		}
		out.Edges = append(out.Edges, e.Clone())
	}

	*s = out
	return nil
}

// EncodeSnapshot serialises a snapshot to its wire format.
func EncodeSnapshot(s Snapshot) ([]byte, error) { return json.Marshal(s) }

// DecodeSnapshot parses a wire format snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SnapshotStore is the persistence collaborator of the graph store.
// Read returns (nil, nil) when nothing has been written yet.
type SnapshotStore interface {
	Write(ctx context.Context, snapshot Snapshot) error
	Read(ctx context.Context) (*Snapshot, error)
}
