package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/shared/types"
	"github.com/voxwork/voxwork/internal/suite"
)

// ErrNotConnected is returned by SendText/SetMuted without a live connection.
var ErrNotConnected = errors.New("transport not connected")

const writeTimeout = 5 * time.Second

// sessionSetup is the first frame after dial; the gateway binds the persona
// graph, guardrails, and workspace context for the connection's lifetime.
type sessionSetup struct {
	Type       string          `json:"type"`
	Graph      suite.Graph     `json:"graph"`
	Guardrails []string        `json:"guardrails,omitempty"`
	TabContext []types.TabMeta `json:"tab_context,omitempty"`
	Muted      bool            `json:"muted"`
}

type userText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type muteControl struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

// Realtime is the websocket implementation of Capability.
type Realtime struct {
	gatewayURL       string
	handshakeTimeout time.Duration
	log              *logging.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewRealtime creates a transport client for the given gateway URL.
func NewRealtime(gatewayURL string, handshakeTimeout time.Duration, log *logging.Logger) *Realtime {
	return &Realtime{
		gatewayURL:       gatewayURL,
		handshakeTimeout: handshakeTimeout,
		log:              log.Named("transport"),
	}
}

// Connect dials the gateway and sends the session setup frame. The codec is
// carried in the dial URL because the gateway negotiates it only at setup.
func (r *Realtime) Connect(ctx context.Context, params ConnectParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return errors.New("transport already connected")
	}

	u, err := url.Parse(r.gatewayURL)
	if err != nil {
		return fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	if params.Codec != "" {
		q.Set("codec", params.Codec)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: r.handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+params.Credential)

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("gateway dial failed: %w", err)
	}

	setup := sessionSetup{
		Type:       "session.setup",
		Graph:      params.Graph,
		Guardrails: params.Guardrails,
		TabContext: params.TabContext,
		Muted:      params.Muted,
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return fmt.Errorf("session setup failed: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	go r.readLoop(conn, r.done)
	return nil
}

// readLoop drains server frames so control messages and pings are processed.
// Audio handling belongs to the UI layer; here a read error just means the
// connection is gone.
func (r *Realtime) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.log.Debug("transport read closed", zap.Error(err))
			r.mu.Lock()
			if r.conn == conn {
				r.conn = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

// Disconnect closes the connection. Teardown errors are logged and
// swallowed: callers fail open so the UI never strands mid-state.
func (r *Realtime) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	done := r.done
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		r.log.Debug("close frame write failed", zap.Error(err))
	}
	err := conn.Close()

	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return err
}

// SendText injects a synthetic user turn.
func (r *Realtime) SendText(ctx context.Context, text string) error {
	return r.writeJSON(ctx, userText{Type: "user.text", Text: text})
}

// SetMuted toggles microphone input.
func (r *Realtime) SetMuted(muted bool) error {
	return r.writeJSON(context.Background(), muteControl{Type: "input.mute", Muted: muted})
}

// Connected reports whether a live connection exists.
func (r *Realtime) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *Realtime) writeJSON(ctx context.Context, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	r.conn.SetWriteDeadline(deadline)
	return r.conn.WriteJSON(v)
}
