// Package transcript holds the ordered message list for the current working
// session, including hidden synthetic turns injected by the timer relay.
package transcript

import (
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"github.com/voxwork/voxwork/internal/shared/id"
	"github.com/voxwork/voxwork/internal/shared/types"
)

// Store is the in-memory transcript for the current working session.
type Store struct {
	mu   sync.RWMutex
	msgs []types.Message
}

// NewStore creates an empty transcript store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a message and returns it with id and timestamp assigned.
func (s *Store) Append(role types.MessageRole, content string, hidden bool) types.Message {
	msg := types.Message{
		ID:        id.NewMessageID(),
		Role:      role,
		Content:   content,
		Hidden:    hidden,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return msg
}

// Replace swaps the whole transcript, used when resuming a working session.
func (s *Store) Replace(msgs []types.Message) {
	s.mu.Lock()
	s.msgs = append([]types.Message(nil), msgs...)
	s.mu.Unlock()
}

// Reset clears the transcript, used when a fresh working session starts.
func (s *Store) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// Messages returns a copy of the transcript. Hidden relay tokens are
// excluded unless includeHidden is set; the UI renders with includeHidden
// false, export runs with it true.
func (s *Store) Messages(includeHidden bool) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.Hidden && !includeHidden {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Len returns the total message count, hidden included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// ExportJSON serializes the full transcript, hidden tokens included.
func (s *Store) ExportJSON() ([]byte, error) {
	return sonic.Marshal(s.Messages(true))
}

// ExportGzip writes the gzip-compressed full transcript to w.
func (s *Store) ExportGzip(w io.Writer) error {
	data, err := s.ExportJSON()
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
