package types

import "time"

// SaveState is the autosave engine's write status. One instance per engine,
// not per tab.
type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)

// SaveStatus pairs the save state with the error message that made it sticky.
type SaveStatus struct {
	State     SaveState `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notice is a user-visible message published on the event bus, e.g. the
// forced disconnect on project switch.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
