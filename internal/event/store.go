package event

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the append-only event log. Append assigns the next per-stream
// version; nothing here ever mutates a stored event's identity or payload,
// only its processing bookkeeping.
type Store interface {
	Append(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (Event, error)
	ListStream(ctx context.Context, streamType, streamID string) ([]Event, error)
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	RecordError(ctx context.Context, id, msg string) error
	ClearError(ctx context.Context, id string) error
}

type streamKey struct {
	typ string
	id  string
}

// InMemory implements Store with in-process concurrency safety. Version
// assignment happens under the store lock, so concurrent emitters on one
// stream cannot observe the same version.
type InMemory struct {
	mu       sync.RWMutex
	events   map[string]*Event
	versions map[streamKey]int64
	order    []string
}

// NewInMemory creates an empty event log.
func NewInMemory() *InMemory {
	return &InMemory{
		events:   make(map[string]*Event),
		versions: make(map[streamKey]int64),
	}
}

func (s *InMemory) Append(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{typ: e.StreamType, id: e.StreamID}
	next := s.versions[key] + 1
	e.StreamVersion = next
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	stored := *e
	s.events[e.ID] = &stored
	s.versions[key] = next
	s.order = append(s.order, e.ID)
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return *e, nil
}

func (s *InMemory) ListStream(ctx context.Context, streamType, streamID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.StreamType == streamType && e.StreamID == streamID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamVersion < out[j].StreamVersion })
	return out, nil
}

func (s *InMemory) ListPending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, id := range s.order {
		e := s.events[id]
		if e.ProcessedAt != nil {
			continue
		}
		out = append(out, *e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	e.ProcessedAt = &at
	e.ProcessingError = ""
	return nil
}

func (s *InMemory) RecordError(ctx context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	e.ProcessedAt = nil
	e.ProcessingError = msg
	e.RetryCount++
	return nil
}

func (s *InMemory) ClearError(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	e.ProcessingError = ""
	return nil
}
