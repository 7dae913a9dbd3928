// Package store is the REST client for the backend persistence layer:
// ephemeral transport credentials, working session CRUD, tab persistence,
// and transcript saves.
//
// Built on go-resty with a circuit breaker around writes so a failing store
// cannot cause write storms; the unload path goes through a separate
// fire-and-forget beacon client that retries without anyone waiting on it.
package store
