package event

import (
	"context"
	"errors"
	"testing"
)

type stubDispatcher struct {
	store *InMemory
	fail  error
	seen  []Event
}

func (d *stubDispatcher) Dispatch(ctx context.Context, e Event) error {
	d.seen = append(d.seen, e)
	if d.fail != nil {
		_ = d.store.RecordError(ctx, e.ID, d.fail.Error())
		return d.fail
	}
	return d.store.MarkProcessed(ctx, e.ID, e.CreatedAt)
}

func TestEmitValidation(t *testing.T) {
	s := NewInMemory()
	em := NewEmitter(s, &stubDispatcher{store: s})
	ctx := context.Background()

	cases := []struct {
		name string
		emit func() (string, error)
	}{
		{"missing stream id", func() (string, error) {
			return em.Emit(ctx, "", StreamUser, "user.created", nil, Metadata{ActorID: "a", Reason: "initial provisioning"})
		}},
		{"missing actor", func() (string, error) {
			return em.Emit(ctx, "u-1", StreamUser, "user.created", nil, Metadata{Reason: "initial provisioning"})
		}},
		{"undotted event type", func() (string, error) {
			return em.Emit(ctx, "u-1", StreamUser, "created", nil, Metadata{ActorID: "a", Reason: "initial provisioning"})
		}},
		{"short reason", func() (string, error) {
			return em.Emit(ctx, "u-1", StreamUser, "user.created", nil, Metadata{ActorID: "a", Reason: "because"})
		}},
	}
	for _, c := range cases {
		if _, err := c.emit(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", c.name, err)
		}
	}

	// Nothing durable happens on a rejected emission.
	if pending, _ := s.ListPending(ctx, 10); len(pending) != 0 {
		t.Fatalf("validation left events behind: %v", pending)
	}

	// Admin signals do not need a justification.
	if _, err := em.Emit(ctx, "sys", StreamAdmin, "admin.ping", nil, Metadata{ActorID: "a"}); err != nil {
		t.Fatalf("admin emit: %v", err)
	}
}

func TestEmitDispatchFailureFlagsEvent(t *testing.T) {
	s := NewInMemory()
	d := &stubDispatcher{store: s, fail: errors.New("handler broke")}
	em := NewEmitter(s, d)
	ctx := context.Background()

	id, err := em.Emit(ctx, "u-1", StreamUser, "user.created", map[string]any{"email": "x@y.z"},
		Metadata{ActorID: "admin-1", Reason: "initial provisioning"})

	var flagged *FlaggedError
	if !errors.As(err, &flagged) {
		t.Fatalf("expected FlaggedError, got %v", err)
	}
	if flagged.EventID != id {
		t.Fatalf("flagged id %s != %s", flagged.EventID, id)
	}

	got, gerr := s.Get(ctx, id)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if got.ProcessedAt != nil || got.ProcessingError == "" || got.RetryCount != 1 {
		t.Fatalf("expected durable flagged event, got %+v", got)
	}
}

func TestEmitSuccess(t *testing.T) {
	s := NewInMemory()
	d := &stubDispatcher{store: s}
	em := NewEmitter(s, d)
	ctx := context.Background()

	id, err := em.Emit(ctx, "org-1", StreamOrganization, "organization.created",
		map[string]any{"name": "Acme"}, Metadata{ActorID: "admin-1", Reason: "tenant onboarding"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pending() {
		t.Fatalf("expected processed event, got %+v", got)
	}
	if got.StreamVersion != 1 || got.EventType != "organization.created" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if len(d.seen) != 1 {
		t.Fatalf("dispatcher saw %d events", len(d.seen))
	}
}
