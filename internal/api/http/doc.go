// Package http exposes the intent API: connect and disconnect, project
// activation, tab mutations, forced saves, timer verbs, conversation
// bookkeeping, and settings. Handlers translate requests into manager calls
// and status enums into JSON; no domain state lives here.
package http
