package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures breaker behavior.
type Settings struct {
	// MaxRequests is the number of probe requests allowed in half-open state.
	MaxRequests uint32
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count that trips the circuit.
	FailureThreshold uint32
	// OnStateChange is called whenever the state changes.
	OnStateChange func(name string, from State, to State)
}

// Breaker implements the circuit breaker pattern for a single dependency.
type Breaker struct {
	name     string
	settings Settings

	mu           sync.Mutex
	state        State
	failures     uint32
	successes    uint32
	halfOpenSeen uint32
	openedAt     time.Time
	generation   uint64
}

// New creates a circuit breaker with the given settings.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	return &Breaker{name: name, settings: settings}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for open-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Execute runs fn if the breaker admits it and records the result.
func (b *Breaker) Execute(fn func() error) error {
	gen, err := b.before()
	if err != nil {
		return err
	}
	err = fn()
	b.after(gen, err == nil)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.currentState(now) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenSeen >= b.settings.MaxRequests {
			return b.generation, ErrTooManyRequests
		}
		b.halfOpenSeen++
	}
	return b.generation, nil
}

func (b *Breaker) after(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)
	if gen != b.generation {
		// Breaker state cycled while the request was in flight.
		return
	}

	if success {
		b.failures = 0
		if state == StateHalfOpen {
			b.successes++
			if b.successes >= b.settings.MaxRequests {
				b.setState(StateClosed, now)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// currentState must be called with the lock held.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.settings.Timeout {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

// setState must be called with the lock held.
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.generation++
	b.failures = 0
	b.successes = 0
	b.halfOpenSeen = 0
	if state == StateOpen {
		b.openedAt = now
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
