package types

import "time"

// TimerStatus is the countdown lifecycle state. Completed is terminal and is
// cleared only by an explicit stop, which removes the timer entirely.
type TimerStatus string

const (
	TimerRunning   TimerStatus = "running"
	TimerPaused    TimerStatus = "paused"
	TimerCompleted TimerStatus = "completed"
)

// MilestoneKind tags a countdown threshold that fires at most once per timer.
type MilestoneKind string

const (
	MilestoneQuarter       MilestoneKind = "quarter"
	MilestoneHalfway       MilestoneKind = "halfway"
	MilestoneThreeQuarters MilestoneKind = "three_quarters"
	MilestoneFinalStretch  MilestoneKind = "final_stretch"
	MilestoneComplete      MilestoneKind = "complete"
)

// MilestonePrefs records which milestones relay into the conversation.
type MilestonePrefs struct {
	Quarter       bool `json:"quarter"`
	Halfway       bool `json:"halfway"`
	ThreeQuarters bool `json:"three_quarters"`
	FinalStretch  bool `json:"final_stretch"`
	Complete      bool `json:"complete"`
}

// DefaultMilestonePrefs enables every milestone.
func DefaultMilestonePrefs() MilestonePrefs {
	return MilestonePrefs{
		Quarter:       true,
		Halfway:       true,
		ThreeQuarters: true,
		FinalStretch:  true,
		Complete:      true,
	}
}

// Enabled reports whether the given milestone kind is switched on.
func (p MilestonePrefs) Enabled(kind MilestoneKind) bool {
	switch kind {
	case MilestoneQuarter:
		return p.Quarter
	case MilestoneHalfway:
		return p.Halfway
	case MilestoneThreeQuarters:
		return p.ThreeQuarters
	case MilestoneFinalStretch:
		return p.FinalStretch
	case MilestoneComplete:
		return p.Complete
	}
	return false
}

// TimerState is the single countdown slot. Starting a new timer discards the
// prior state wholesale, including the triggered set. Generation increments
// on every replacement so a stale poll tick can detect it is operating on a
// timer that no longer exists.
type TimerState struct {
	ID          string                 `json:"id"`
	Generation  uint64                 `json:"generation"`
	Label       string                 `json:"label"`
	Duration    time.Duration          `json:"duration"`
	StartedAt   time.Time              `json:"started_at"`
	PausedAt    *time.Time             `json:"paused_at,omitempty"`
	Reference   time.Time              `json:"reference"`
	Accumulated time.Duration          `json:"accumulated"`
	Status      TimerStatus            `json:"status"`
	Triggered   map[MilestoneKind]bool `json:"triggered"`
	Prefs       MilestonePrefs         `json:"prefs"`
}

// Elapsed is accumulated run time plus the open interval when running.
func (t TimerState) Elapsed(now time.Time) time.Duration {
	elapsed := t.Accumulated
	if t.Status == TimerRunning {
		elapsed += now.Sub(t.Reference)
	}
	return elapsed
}

// Remaining clamps at zero once the duration is spent.
func (t TimerState) Remaining(now time.Time) time.Duration {
	remaining := t.Duration - t.Elapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
