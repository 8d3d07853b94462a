// Package testutil contains helper builders and agents used across tests to
// reduce boilerplate when wiring graphs, registries and schedulers. They are
// not intended for production usage.
package testutil
