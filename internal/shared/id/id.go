// Package id provides ID generation for the coordination core.
//
// Sessions, messages, and timers use prefixed ULIDs (sess_*, msg_*, timer_*):
// lexicographically sortable, debuggable in logs. Tabs use canonical UUIDs
// because the tool-style mutators address tabs by id and the backend store
// requires UUID identity; CanonicalTabID re-identifies anything else.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	SessionPrefix = "sess"
	MessagePrefix = "msg"
	TimerPrefix   = "timer"
)

// Generator produces ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator with the given entropy source.
// Tests can pass a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID string.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// WithPrefix creates a prefixed ULID string.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewSessionID generates a working session ID.
func NewSessionID() string { return Default().WithPrefix(SessionPrefix) }

// NewMessageID generates a transcript message ID.
func NewMessageID() string { return Default().WithPrefix(MessagePrefix) }

// NewTimerID generates a timer ID.
func NewTimerID() string { return Default().WithPrefix(TimerPrefix) }

// NewTabID generates a canonical tab UUID.
func NewTabID() string { return uuid.New().String() }

// IsCanonicalTabID reports whether s is a canonical UUID.
func IsCanonicalTabID(s string) bool {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	// uuid.Parse accepts urn: and braced forms; only the plain form is canonical.
	return parsed.String() == s
}

// CanonicalTabID returns s unchanged when it is already canonical, otherwise
// a fresh UUID and replaced=true.
func CanonicalTabID(s string) (string, bool) {
	if IsCanonicalTabID(s) {
		return s, false
	}
	return NewTabID(), true
}
