package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("store", Settings{FailureThreshold: 3, Timeout: time.Hour})
	fail := errors.New("store down")

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return fail })
		require.ErrorIs(t, err, fail)
	}

	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("store", Settings{FailureThreshold: 3, Timeout: time.Hour})
	fail := errors.New("store down")

	b.Execute(func() error { return fail })
	b.Execute(func() error { return fail })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return fail })
	b.Execute(func() error { return fail })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	var transitions []State
	b := New("store", Settings{
		FailureThreshold: 1,
		Timeout:          10 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	b.Execute(func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	err := b.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("store", Settings{FailureThreshold: 1, Timeout: 10 * time.Millisecond})

	b.Execute(func() error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	b.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, b.State())
}
