package core

import (
	"time"

	"github.com/google/uuid"
)

// GraphEventKind enumerates graph change notifications.
type GraphEventKind string

const (
	GraphNodeAdded   GraphEventKind = "node_added"
	GraphNodeUpdated GraphEventKind = "node_updated"
	GraphNodeRemoved GraphEventKind = "node_removed"
	GraphEdgeAdded   GraphEventKind = "edge_added"
	GraphEdgeRemoved GraphEventKind = "edge_removed"
	GraphCleared     GraphEventKind = "graph_cleared"
	GraphImported    GraphEventKind = "graph_imported"
)

// GraphEvent describes one committed graph mutation. Seq increases strictly
// per store in issuance order. Node and Edge carry a copy of the affected
// entity after the change (before it, for removals).
type GraphEvent struct {
	Seq       uint64         `json:"seq"`
	Kind      GraphEventKind `json:"kind"`
	NodeID    string         `json:"nodeId,omitempty"`
	EdgeID    string         `json:"edgeId,omitempty"`
	Node      *Node          `json:"node,omitempty"`
	Edge      *Edge          `json:"edge,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TaskEventType enumerates task lifecycle notifications.
type TaskEventType string

const (
	TaskEventSubmitted TaskEventType = "submitted"
	TaskEventStarted   TaskEventType = "started"
	TaskEventProgress  TaskEventType = "progress"
	TaskEventRetrying  TaskEventType = "retrying"
	TaskEventCompleted TaskEventType = "completed"
	TaskEventFailed    TaskEventType = "failed"
	TaskEventCancelled TaskEventType = "cancelled"
)

// TaskEvent describes one task lifecycle step. Events of a single task are
// issued in order; Seq is global to the scheduler.
type TaskEvent struct {
	Seq       uint64        `json:"seq"`
	Type      TaskEventType `json:"type"`
	TaskID    string        `json:"taskId"`
	AgentID   string        `json:"agentId"`
	Status    TaskStatus    `json:"status"`
	Progress  int           `json:"progress"`
	Attempt   int           `json:"attempt,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"errorKind,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

// Now returns the current UTC time without a monotonic reading so values
// compare equal after a serialisation round trip.
func Now() time.Time { return time.Now().UTC().Round(0) }
