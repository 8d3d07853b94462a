// Package agent contains the concrete agents the scheduler dispatches to.
// The package focuses on three concerns:
//
//  1. Identity and capability plumbing shared by every agent (BaseAgent)
//  2. Adapters for plain functions and pipelines (FuncAgent, SequentialAgent)
//  3. Model backed agents producing replies from a language model (ModelAgent)
//
// Design principles:
//   - Agents are opaque capability providers; they see a core.TaskRequest and
//     return outputs, never the graph or the scheduler
//   - Retryable failures are wrapped with core.Transient, everything else is
//     reported as is and treated as permanent
//   - Agents that honour ctx between steps implement core.CooperativeAgent
//
// DefaultRoster builds the fixed planner, builder, designer, tester and
// deployer agents on top of a model.Model.
package agent
