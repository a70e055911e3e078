// Package bus fans gateway events out to WebSocket clients.
package bus

import (
	"sync"
	"time"
)

// EventType classifies a gateway event for WebSocket clients.
type EventType string

const (
	EventRecord     EventType = "record"
	EventHeartbeat  EventType = "heartbeat"
	EventAlert      EventType = "alert"
	EventNodeUpdate EventType = "node_update"
	EventStatus     EventType = "status"
)

// Event is the JSON-serialisable envelope broadcast to WebSocket clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// subscriber holds a buffered channel for one WebSocket connection.
type subscriber struct {
	ch chan Event
}

// Bus fans events out to all registered subscribers. Channel-based
// subscribers keep it transport-agnostic and fully testable without a
// real WebSocket.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New constructs a ready Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new client. Returns a receive channel and an
// unsubscribe function that must be called when the client disconnects
// (it closes the channel).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}
	return s.ch, unsub
}

// Publish sends an Event to all current subscribers. Slow consumers are
// skipped (their buffer is full) to avoid stalling the poll loop; they
// can catch up via the REST history endpoint.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			// Slow consumer – drop silently.
		}
	}
}

// PublishRecord is a convenience wrapper for EventRecord events.
func (b *Bus) PublishRecord(data interface{}) {
	b.Publish(Event{Type: EventRecord, Data: data})
}

// PublishHeartbeat is a convenience wrapper for EventHeartbeat events.
func (b *Bus) PublishHeartbeat(data interface{}) {
	b.Publish(Event{Type: EventHeartbeat, Data: data})
}

// PublishAlert is a convenience wrapper for EventAlert events.
func (b *Bus) PublishAlert(data interface{}) {
	b.Publish(Event{Type: EventAlert, Data: data})
}

// PublishNodeUpdate is a convenience wrapper for EventNodeUpdate events.
func (b *Bus) PublishNodeUpdate(data interface{}) {
	b.Publish(Event{Type: EventNodeUpdate, Data: data})
}

// Len returns the current subscriber count (useful for metrics/tests).
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
