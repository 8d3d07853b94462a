// Package storage contains concrete core.SnapshotStore implementations used to
// persist the knowledge graph. The interface resides in the core package;
// select an implementation (in-memory, JSON file or SQLite) at wiring time,
// usually through Open.
//
// Every implementation stores the snapshot wire format produced by
// core.EncodeSnapshot, so a graph written by one backend can be exported and
// imported into another.
package storage
