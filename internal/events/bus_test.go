package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	bus := NewBus()

	timerCh, cancelTimer := bus.Subscribe(TopicTimer)
	defer cancelTimer()
	allCh, cancelAll := bus.Subscribe()
	defer cancelAll()

	bus.Publish(TopicTimer, "tick")
	bus.Publish(TopicNotice, "switched")

	ev := recv(t, timerCh)
	assert.Equal(t, TopicTimer, ev.Topic)
	assert.Equal(t, "tick", ev.Payload)

	// Topic-filtered subscriber never sees the notice.
	select {
	case ev := <-timerCh:
		t.Fatalf("unexpected event on timer channel: %v", ev)
	default:
	}

	require.Equal(t, TopicTimer, recv(t, allCh).Topic)
	require.Equal(t, TopicNotice, recv(t, allCh).Topic)
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicConnection)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	bus.Publish(TopicConnection, "connected")
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(TopicTimer)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(TopicTimer, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
