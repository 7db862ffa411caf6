package notify

import (
	"sync"
	"time"

	"orgcore.org/internal/event"
)

// Signal is the fire-and-forget payload handed to an external workflow
// consumer (DNS setup, welcome email). It carries just enough to fetch the
// full event; the engine never waits for, or depends on, the consumer.
type Signal struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	StreamID      string    `json:"stream_id"`
	StreamType    string    `json:"stream_type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// Hub fans signals out to all active subscribers with at-most-once delivery:
// a subscriber that cannot keep up loses signals rather than blocking
// dispatch.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Signal
	next int
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Signal)}
}

// Subscribe registers a consumer and returns its channel plus a cancel
// function. The channel is buffered; overflow drops.
func (h *Hub) Subscribe(buffer int) (<-chan Signal, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Signal, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish forwards the event as a signal to every subscriber without
// blocking. Implements the dispatch.Notifier contract.
func (h *Hub) Publish(e event.Event) {
	sig := Signal{
		EventID:       e.ID,
		EventType:     e.EventType,
		StreamID:      e.StreamID,
		StreamType:    e.StreamType,
		CorrelationID: e.Metadata.CorrelationID,
		EmittedAt:     e.CreatedAt,
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- sig:
		default:
			// At most once: drop instead of stalling the dispatch path.
		}
	}
}

// Subscribers reports the number of active consumers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
