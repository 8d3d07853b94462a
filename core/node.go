package core

import (
	"slices"
	"time"
)

// NodeType classifies a node. The set is closed; see NodeTypes.
type NodeType string

const (
	NodeIntent       NodeType = "intent"
	NodeFeature      NodeType = "feature"
	NodeScreen       NodeType = "screen"
	NodeLogic        NodeType = "logic"
	NodeRelationship NodeType = "relationship"
	NodeDecision     NodeType = "decision"
	NodeDataModel    NodeType = "data_model"
	NodeAPI          NodeType = "api"
	NodeTest         NodeType = "test"
)

// NodeTypes lists every valid node type.
var NodeTypes = []NodeType{
	NodeIntent, NodeFeature, NodeScreen, NodeLogic, NodeRelationship,
	NodeDecision, NodeDataModel, NodeAPI, NodeTest,
}

// Valid reports whether t belongs to the closed node type set.
func (t NodeType) Valid() bool { return slices.Contains(NodeTypes, t) }

// EdgeType labels a relationship. The set is open; the constants below are
// the well-known values.
type EdgeType string

const (
	EdgeImplements  EdgeType = "implements"
	EdgeDependsOn   EdgeType = "depends_on"
	EdgeRelatesTo   EdgeType = "relates_to"
	EdgeDerivedFrom EdgeType = "derived_from"
	EdgeContains    EdgeType = "contains"
	EdgeUses        EdgeType = "uses"
	EdgeTests       EdgeType = "tests"
	EdgeConfigures  EdgeType = "configures"
	EdgeExtends     EdgeType = "extends"
)

// Node is a typed unit of project knowledge.
//
// Connections is derived: it holds the ids of every node sharing at least one
// edge with this node, each id once, and is maintained by the graph store.
type Node struct {
	ID          string    `json:"id"`
	Type        NodeType  `json:"type"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Metadata    Metadata  `json:"metadata"`
	Connections []string  `json:"connections"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	c.Metadata = n.Metadata.Clone()
	c.Connections = append(make([]string, 0, len(n.Connections)), n.Connections...)
	return c
}

// Edge is a directed, typed and weighted link between two nodes. Edges are
// immutable once created.
type Edge struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      EdgeType  `json:"type"`
	Weight    float64   `json:"weight"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	c := e
	c.Metadata = e.Metadata.Clone()
	return c
}

// Touches reports whether id is one of the edge endpoints.
func (e Edge) Touches(id string) bool { return e.From == id || e.To == id }

// Peer returns the opposite endpoint of id.
func (e Edge) Peer(id string) string {
	if e.From == id {
		return e.To
	}
	return e.From
}

// GraphData is a full, serialisable view of the graph.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
