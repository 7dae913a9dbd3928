// Package transport abstracts the realtime audio gateway as an opaque
// connect/disconnect/send-text/mute capability.
//
// The session lifecycle manager and the timer relay depend only on the
// Capability interface; the wire details live in the websocket
// implementation. The relay never checks whether a session exists; it asks
// Connected() and no-ops otherwise.
package transport

import (
	"context"

	"github.com/voxwork/voxwork/internal/shared/types"
	"github.com/voxwork/voxwork/internal/suite"
)

// ConnectParams carries everything the gateway negotiates at setup. The
// context snapshot and persona graph are bound for the life of the
// connection; codec cannot change without a reconnect.
type ConnectParams struct {
	Credential string
	Graph      suite.Graph
	Guardrails []string
	TabContext []types.TabMeta
	Codec      string
	Muted      bool
}

// Capability is the opaque realtime transport surface.
type Capability interface {
	// Connect performs the handshake. The connection is usable once it
	// returns nil.
	Connect(ctx context.Context, params ConnectParams) error
	// Disconnect tears the connection down. Safe to call when not connected.
	Disconnect(ctx context.Context) error
	// SendText injects a synthetic user turn into the live conversation.
	SendText(ctx context.Context, text string) error
	// SetMuted toggles microphone input on the live connection.
	SetMuted(muted bool) error
	// Connected reports whether a live connection exists.
	Connected() bool
}
