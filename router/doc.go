// Package router turns conversation messages into scheduled tasks and records
// their provenance in the knowledge graph.
//
// Every user message becomes an intent node threaded to the previous turn of
// its conversation with a derived_from edge. The task submitted for it
// carries the message text and the graph neighbourhood of the intent as
// context. The Recorder appends the user message once the scheduler accepts
// the task; a refused message leaves neither node nor message behind. When
// the task ends, the Recorder writes the agent reply (a feature or decision
// node) or the failure (a decision node) back into the graph, linked to the
// intent, and appends the reply to the conversation.
//
// The guided project flow (StartGuidedFlow) is a small state machine that
// collects a project kind and a description before delegating to the planner.
package router
