// Package realtime fans events out to connected viewers.
package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/memehustle/internal/metrics"
)

// EventType names a realtime event.
type EventType string

const (
	EventListingCreated     EventType = "listing.created"
	EventListingUpdated     EventType = "listing.updated"
	EventListingDeleted     EventType = "listing.deleted"
	EventLeaderboardUpdated EventType = "leaderboard.updated"
)

// Event is one message delivered to subscribers.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// NewEvent marshals data into an Event.
func NewEvent(t EventType, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: raw, At: time.Now()}, nil
}

// Subscriber receives events on a buffered channel until it is closed.
type Subscriber struct {
	ID      string
	events  chan Event
	dropped atomic.Int64
}

// Events returns the delivery channel. It is closed on unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Dropped returns how many events this subscriber missed because its buffer was full.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// offer delivers without blocking. Returns false if the buffer is full.
func (s *Subscriber) offer(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Hub is a publish/subscribe broker. Publishing never blocks on a slow subscriber.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
}

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:     uuid.NewString(),
		events: make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	metrics.Subscribers.Inc()
	return s
}

// Unsubscribe removes a subscriber and closes its channel. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	if ok {
		delete(h.subs, s.ID)
		close(s.events)
	}
	h.mu.Unlock()
	if ok {
		metrics.Subscribers.Dec()
	}
}

// Publish delivers e to every subscriber and returns how many received it.
func (h *Hub) Publish(e Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()
	delivered := 0
	for _, s := range h.subs {
		if s.offer(e) {
			delivered++
		} else {
			metrics.EventsDropped.Inc()
		}
	}
	return delivered
}

// Send delivers e to one subscriber only.
func (h *Hub) Send(s *Subscriber, e Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[s.ID]; !ok {
		return false
	}
	return s.offer(e)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
