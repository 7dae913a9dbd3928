// Package resilience provides a circuit breaker for backend store calls.
//
// The breaker protects the autosave and session persistence paths from write
// storms against a failing store: after repeated consecutive failures the
// circuit opens and writes fail fast until a probe succeeds. Autosave treats
// ErrCircuitOpen like any other write failure (sticky error, manual retry).
package resilience
