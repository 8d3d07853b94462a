// Package graph implements the knowledge graph store.
//
// A Store holds typed nodes and directed, weighted edges. Every node carries
// a derived Connections list which is kept equal to the symmetric closure of
// the edges touching it. Mutations are serialised by a single writer lock and
// persisted synchronously through an injected core.SnapshotStore; readers
// observe the last committed state and never a half applied mutation.
//
// Each committed mutation is announced as a core.GraphEvent on a bounded,
// drop-oldest stream (see package stream). Only notifications may be dropped;
// the graph itself never loses a change.
//
// Persistence failures are returned as *core.StorageError. The in-memory
// change is kept, so an id returned together with a StorageError is valid.
package graph
