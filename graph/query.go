package graph

import (
	"slices"
	"strings"

	"github.com/codai-ecosystem/codai/core"
)

// Subgraph depth bounds.
const (
	MinDepth = 1
	MaxDepth = 5
)

// GetNode returns a copy of the node with the given id.
func (s *Store) GetNode(id string) (core.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return core.Node{}, false
	}
	return n.Clone(), true
}

// GetEdge returns a copy of the edge with the given id.
func (s *Store) GetEdge(id string) (core.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[id]
	if !ok {
		return core.Edge{}, false
	}
	return e.Clone(), true
}

// GetNodesByType returns nodes of type t in insertion order.
func (s *Store) GetNodesByType(t core.NodeType) []core.Node {
	return s.filter(func(n *core.Node) bool { return n.Type == t })
}

// SearchNodes returns nodes whose content or any string metadata value
// contains query, ignoring case. Results keep insertion order.
func (s *Store) SearchNodes(query string) []core.Node {
	q := strings.ToLower(query)

	return s.filter(func(n *core.Node) bool {
		if strings.Contains(strings.ToLower(n.Content), q) {
			return true
		}
		for _, v := range n.Metadata {
			if str, ok := v.Str(); ok && strings.Contains(strings.ToLower(str), q) {
				return true
			}
		}
		return false
	})
}

// GetConnectedNodes returns the direct neighbours of id in Connections order.
func (s *Store) GetConnectedNodes(id string) []core.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return []core.Node{}
	}

	out := make([]core.Node, 0, len(n.Connections))
	for _, peer := range n.Connections {
		if p, ok := s.nodes[peer]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// EdgesOf returns the edges touching id in creation order.
func (s *Store) EdgesOf(id string) []core.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Edge{}
	for _, eid := range s.edgeOrder {
		if e := s.edges[eid]; e.Touches(id) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Subgraph returns the neighbourhood reachable from id within depth hops,
// including id itself, and the edges among those nodes. depth is clamped to
// [MinDepth, MaxDepth]. Unknown ids yield an empty result.
func (s *Store) Subgraph(id string, depth int) core.GraphData {
	depth = min(max(depth, MinDepth), MaxDepth)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := core.GraphData{Nodes: []core.Node{}, Edges: []core.Edge{}}

	if _, ok := s.nodes[id]; !ok {
		return out
	}

	seen := map[string]bool{id: true}
	frontier := []string{id}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			for _, peer := range s.nodes[cur].Connections {
				if seen[peer] {
					continue
				}
				if _, ok := s.nodes[peer]; !ok {
					continue
				}
				seen[peer] = true
				next = append(next, peer)
			}
		}
		frontier = next
	}

	for _, nid := range s.nodeOrder {
		if seen[nid] {
			out.Nodes = append(out.Nodes, s.nodes[nid].Clone())
		}
	}

	for _, eid := range s.edgeOrder {
		e := s.edges[eid]
		if seen[e.From] && seen[e.To] {
			out.Edges = append(out.Edges, e.Clone())
		}
	}

	return out
}

// GetGraphData returns a deep copy of every node and edge.
func (s *Store) GetGraphData() core.GraphData {
	snap := s.Export()
	return core.GraphData{Nodes: snap.Nodes, Edges: snap.Edges}
}

// Nodes returns every node matching all of the given predicates, in insertion order.
func (s *Store) Nodes(preds ...func(core.Node) bool) []core.Node {
	return s.filter(func(n *core.Node) bool {
		return !slices.ContainsFunc(preds, func(p func(core.Node) bool) bool { return !p(*n) })
	})
}

func (s *Store) filter(keep func(n *core.Node) bool) []core.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Node{}
	for _, id := range s.nodeOrder {
		if n := s.nodes[id]; keep(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}
