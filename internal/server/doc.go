// Package server composes the managers, the stores, and the HTTP surface
// into one runnable service.
package server
