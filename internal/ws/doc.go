// Package ws streams manager status to the UI over WebSocket.
//
// Each connection gets its own event bus subscription: connection state,
// save status, timer snapshots, notices, celebrations, and reload requests
// arrive as JSON frames in publish order. The stream is one-way apart from
// ping frames; intents travel over the HTTP API.
package ws
