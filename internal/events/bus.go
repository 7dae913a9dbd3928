// Package events provides the typed publish/subscribe channel connecting the
// managers to the UI status stream.
//
// Managers publish status snapshots and notices; subscribers (the WebSocket
// status handler, tests) receive them on buffered channels. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// blocking a manager.
package events

import (
	"sync"
	"time"
)

// Topic routes events to interested subscribers.
type Topic string

const (
	TopicConnection  Topic = "connection"
	TopicSaveStatus  Topic = "save_status"
	TopicTimer       Topic = "timer"
	TopicNotice      Topic = "notice"
	TopicCelebration Topic = "celebration"
	TopicReload      Topic = "reload_required"
)

// Event is one published message.
type Event struct {
	Topic   Topic       `json:"topic"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

const subscriberBuffer = 64

type subscriber struct {
	id     uint64
	topics map[Topic]bool
	ch     chan Event
}

// Bus is an in-process publish/subscribe channel.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers for the given topics (all topics when none given) and
// returns the receive channel plus a cancel func. Cancel closes the channel.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Event, func()) {
	sub := &subscriber{
		ch: make(chan Event, subscriberBuffer),
	}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub.id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is not draining; drop rather than stall a manager.
		}
	}
}
