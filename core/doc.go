// Package core provides the foundational domain types and interfaces shared by
// the knowledge graph and the task orchestration engine. It defines:
//
//   - Nodes and Edges (typed units of project knowledge and their links)
//   - Metadata (string keyed maps of Scalar values: string, number, bool)
//   - Tasks (units of work with a write-once terminal lifecycle)
//   - Agents (opaque capability providers executing tasks)
//   - Events (graph change and task lifecycle notifications)
//   - Snapshots (the persistence wire format) and the SnapshotStore contract
//   - The error taxonomy used across packages
//
// The package keeps implementation concerns (storage, scheduling, routing)
// out of scope, exposing small interfaces so that backends can be swapped.
package core
