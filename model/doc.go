// Package model defines the provider-agnostic abstractions for the language
// models behind model backed agents.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so agents remain decoupled from vendor SDKs. Provider errors worth
// retrying (rate limits, server errors) are marked with core.Transient so the
// scheduler retries them.
package model
