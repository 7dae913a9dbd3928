// Package prefs is the typed durable preference store.
//
// It replaces scattered ad hoc persisted flags with one settings object and
// a single load/save path backed by a TOML file. Defaults are documented on
// the Settings fields; a missing file yields defaults.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Settings holds the durable UI toggles.
type Settings struct {
	// PushToTalk gates microphone capture behind an explicit key. Default off.
	PushToTalk bool `toml:"push_to_talk"`
	// Playback enables agent audio output. Default on.
	Playback bool `toml:"playback"`
	// Codec is negotiated at connection setup only; changing it while
	// connected requires a reload. Default "opus".
	Codec string `toml:"codec"`
	// SuiteID selects the persona graph. Empty means the legacy single agent.
	SuiteID string `toml:"suite_id"`
}

// Defaults returns the documented default settings.
func Defaults() Settings {
	return Settings{
		PushToTalk: false,
		Playback:   true,
		Codec:      "opus",
		SuiteID:    "",
	}
}

// Store persists Settings to a TOML file. Every change is written through.
type Store struct {
	mu   sync.Mutex
	path string
	cur  Settings
}

// Open loads settings from path, falling back to defaults when the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, cur: Defaults()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := toml.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return s, nil
}

// Get returns the current settings snapshot.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies fn to the settings and persists the result.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if err := s.write(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return s.cur, nil
}

// write must be called with the lock held. Writes via rename so a crash
// mid-write never corrupts the file.
func (s *Store) write(settings Settings) error {
	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp, s.path)
}
