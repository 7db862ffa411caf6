package notify

import (
	"testing"

	"orgcore.org/internal/event"
)

func TestPublishFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelA()
	defer cancelB()

	h.Publish(event.Event{ID: "e1", EventType: "organization.created", StreamID: "org-1", StreamType: "organization"})

	for _, ch := range []<-chan Signal{a, b} {
		select {
		case sig := <-ch:
			if sig.EventID != "e1" || sig.EventType != "organization.created" {
				t.Fatalf("unexpected signal: %+v", sig)
			}
		default:
			t.Fatal("signal not delivered")
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	// Fill the buffer and keep publishing; extra signals must drop silently.
	for i := 0; i < 10; i++ {
		h.Publish(event.Event{ID: "e", EventType: "contact.email_set"})
	}
	if got := len(ch); got != 1 {
		t.Fatalf("expected exactly the buffered signal, got %d", got)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers=%d", h.Subscribers())
	}
	cancel()
	cancel() // idempotent
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers=%d after cancel", h.Subscribers())
	}
}
