// Package scheduler runs tasks on agents.
//
// Every agent owns a FIFO queue served by its own dispatch goroutine, so
// agents execute concurrently while each one has at most a single task in
// flight. A task moves pending -> in_progress -> completed | failed |
// cancelled and never leaves a terminal state.
//
// Failures classified as transient by core.IsTransient are retried in place
// with exponential backoff while the task stays in_progress. A task that
// outlives its timeout, measured from its first start, is failed with
// core.ErrTaskTimeout and its agent slot is released at once; whatever the
// abandoned call returns later is discarded.
//
// Graph writes are delegated to a Recorder: the intent node on submission
// when the task has none, and a result or failure node before the task
// reaches its terminal state.
package scheduler
