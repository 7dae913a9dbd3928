package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/infrastructure/monitoring"
	"github.com/voxwork/voxwork/internal/shared/id"
	"github.com/voxwork/voxwork/internal/shared/types"
)

var (
	ErrNoTimer    = errors.New("no active timer")
	ErrNotRunning = errors.New("timer is not running")
	ErrNotPaused  = errors.New("timer is not paused")
)

// milestoneOrder is the fixed per-tick evaluation order; together with the
// per-tag idempotence it yields threshold-ordered emission.
var milestoneOrder = []types.MilestoneKind{
	types.MilestoneQuarter,
	types.MilestoneHalfway,
	types.MilestoneThreeQuarters,
	types.MilestoneFinalStretch,
	types.MilestoneComplete,
}

const (
	finalStretchUpper = 5 * time.Minute
	finalStretchLower = 1 * time.Minute
)

// Manager owns the countdown lifecycle and milestone detection.
type Manager struct {
	mu    sync.Mutex
	cur   *types.TimerState
	gen   uint64
	relay *Relay

	bus     *events.Bus
	log     *logging.Logger
	metrics *monitoring.Metrics
	clock   func() time.Time
	poll    time.Duration
}

// NewManager creates a timer manager.
func NewManager(relay *Relay, bus *events.Bus, log *logging.Logger) *Manager {
	return &Manager{
		relay: relay,
		bus:   bus,
		log:   log.Named("timer"),
		clock: time.Now,
		poll:  100 * time.Millisecond,
	}
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithPollInterval overrides the poll period.
func (m *Manager) WithPollInterval(d time.Duration) *Manager {
	m.poll = d
	return m
}

// WithClock injects a clock for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Start replaces any existing timer wholesale, triggered set included, and
// returns the prior timer when one was discarded.
func (m *Manager) Start(label string, duration time.Duration, prefs types.MilestonePrefs) (types.TimerState, *types.TimerState) {
	now := m.clock()

	m.mu.Lock()
	var replaced *types.TimerState
	if m.cur != nil {
		prior := snapshot(m.cur)
		replaced = &prior
	}
	m.gen++
	m.cur = &types.TimerState{
		ID:         id.NewTimerID(),
		Generation: m.gen,
		Label:      label,
		Duration:   duration,
		StartedAt:  now,
		Reference:  now,
		Status:     types.TimerRunning,
		Triggered:  make(map[types.MilestoneKind]bool),
		Prefs:      prefs,
	}
	state := snapshot(m.cur)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TimersStarted.Inc()
	}
	m.publish(state)
	return state, replaced
}

// Pause folds the open interval into accumulated elapsed time.
func (m *Manager) Pause() (types.TimerState, error) {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return types.TimerState{}, ErrNoTimer
	}
	if m.cur.Status != types.TimerRunning {
		return snapshot(m.cur), ErrNotRunning
	}

	m.cur.Accumulated += now.Sub(m.cur.Reference)
	m.cur.PausedAt = &now
	m.cur.Status = types.TimerPaused
	state := snapshot(m.cur)
	m.publish(state)
	return state, nil
}

// Resume opens a new interval; accumulated time is already folded in.
func (m *Manager) Resume() (types.TimerState, error) {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return types.TimerState{}, ErrNoTimer
	}
	if m.cur.Status != types.TimerPaused {
		return snapshot(m.cur), ErrNotPaused
	}

	m.cur.Reference = now
	m.cur.PausedAt = nil
	m.cur.Status = types.TimerRunning
	state := snapshot(m.cur)
	m.publish(state)
	return state, nil
}

// Stop removes the timer entirely; completed timers stay visible until this.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ErrNoTimer
	}
	m.cur = nil
	m.bus.Publish(events.TopicTimer, nil)
	return nil
}

// Snapshot returns a copy of the current timer state.
func (m *Manager) Snapshot() (types.TimerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return types.TimerState{}, false
	}
	return snapshot(m.cur), true
}

// Run drives the milestone poll until ctx is cancelled. Relay sends happen
// off the poll goroutine so a slow transport never delays the next tick.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate(m.clock())
		}
	}
}

// Evaluate runs one milestone detection pass. Detection works on a snapshot
// and commits triggered tags only if the generation is unchanged, so a tick
// that raced a Start never mutates the replacement timer.
func (m *Manager) Evaluate(now time.Time) {
	m.mu.Lock()
	if m.cur == nil || m.cur.Status == types.TimerPaused || m.cur.Status == types.TimerCompleted {
		m.mu.Unlock()
		return
	}
	observed := snapshot(m.cur)
	m.mu.Unlock()

	elapsed := observed.Elapsed(now)
	remaining := observed.Remaining(now)

	var fired []types.MilestoneKind
	for _, kind := range milestoneOrder {
		if !observed.Prefs.Enabled(kind) || observed.Triggered[kind] {
			continue
		}
		if crossed(kind, elapsed, remaining, observed.Duration) {
			fired = append(fired, kind)
		}
	}
	completed := elapsed >= observed.Duration

	if len(fired) == 0 && !completed {
		return
	}

	m.mu.Lock()
	if m.cur == nil || m.cur.Generation != observed.Generation {
		// Timer was replaced or stopped since the snapshot; this tick's
		// findings belong to a dead generation.
		m.mu.Unlock()
		return
	}
	for _, kind := range fired {
		m.cur.Triggered[kind] = true
	}
	if completed {
		m.cur.Accumulated = elapsed
		m.cur.Status = types.TimerCompleted
	}
	state := snapshot(m.cur)
	m.mu.Unlock()

	if len(fired) > 0 {
		tokens := make([]string, len(fired))
		for i, kind := range fired {
			tokens[i] = Token(kind, state.Label, elapsed, remaining, state.Duration)
			if m.metrics != nil {
				m.metrics.RecordMilestone(string(kind))
			}
		}
		// One goroutine per tick: the poll is never blocked, yet tokens
		// crossed together still reach the transport in threshold order.
		go func() {
			for _, token := range tokens {
				m.relay.Deliver(context.Background(), token)
			}
		}()
	}
	if completed {
		m.bus.Publish(events.TopicCelebration, state.Label)
	}
	m.publish(state)
}

func (m *Manager) publish(state types.TimerState) {
	m.bus.Publish(events.TopicTimer, state)
}

func crossed(kind types.MilestoneKind, elapsed, remaining, duration time.Duration) bool {
	switch kind {
	case types.MilestoneQuarter:
		return elapsed*4 >= duration
	case types.MilestoneHalfway:
		return elapsed*2 >= duration
	case types.MilestoneThreeQuarters:
		return elapsed*4 >= duration*3
	case types.MilestoneFinalStretch:
		// The lower bound keeps the final-stretch nudge clear of completion.
		return remaining < finalStretchUpper && remaining > finalStretchLower
	case types.MilestoneComplete:
		return remaining == 0 && elapsed >= duration
	}
	return false
}

// snapshot copies the state including the triggered set.
func snapshot(t *types.TimerState) types.TimerState {
	out := *t
	out.Triggered = make(map[types.MilestoneKind]bool, len(t.Triggered))
	for k, v := range t.Triggered {
		out.Triggered[k] = v
	}
	if t.PausedAt != nil {
		paused := *t.PausedAt
		out.PausedAt = &paused
	}
	return out
}
