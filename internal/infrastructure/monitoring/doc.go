// Package monitoring provides Prometheus metrics for the coordination core:
// connection lifecycle counters, autosave write results and latency, timer
// milestone relays, and HTTP/WebSocket surface metrics.
package monitoring
