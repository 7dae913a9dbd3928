package types

import "time"

// ConnectionState tracks the realtime transport connection. Transitions are
// owned exclusively by the session lifecycle manager.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one transcript entry. Hidden messages are user-authored
// synthetic turns (timer relay tokens): never rendered, kept for export.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Hidden    bool        `json:"hidden,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// WorkingSession is the continuously-resumable unsaved conversation record
// for a project. A user-initiated save persists a named copy; it does not
// flip IsSaved on the live working session.
type WorkingSession struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SuiteID    string    `json:"suite_id"`
	Name       string    `json:"name,omitempty"`
	IsSaved    bool      `json:"is_saved"`
	Transcript []Message `json:"transcript,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Credential is the short-lived secret minted by the backend for the
// realtime transport handshake.
type Credential struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
