// Package workspace owns the in-memory tab collection for the active
// project and its synchronization to the backend store.
//
// Every mutation updates the collection synchronously and schedules a save.
// Saves are debounced outside a short post-load grace window and deferred
// inside it, so a save triggered by freshly-loaded data can never race a
// concurrent load of the same project. A serialized fingerprint of the last
// persisted snapshot makes forced saves idempotent. Save status is one value
// per engine: idle, saving, saved (auto-reverting), or a sticky error that
// only a manual retry clears.
package workspace
