package event

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAppendAssignsStrictlyIncreasingVersions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		e := &Event{ID: string(rune('a' + i)), StreamID: "org-1", StreamType: StreamOrganization, EventType: "organization.changed"}
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.StreamVersion != int64(i) {
			t.Fatalf("version %d, want %d", e.StreamVersion, i)
		}
	}
	// A different stream starts over at 1.
	other := &Event{ID: "z", StreamID: "org-2", StreamType: StreamOrganization, EventType: "organization.created"}
	if err := s.Append(ctx, other); err != nil {
		t.Fatal(err)
	}
	if other.StreamVersion != 1 {
		t.Fatalf("unexpected version for fresh stream: %d", other.StreamVersion)
	}
}

func TestAppendConcurrentEmittersNeverShareAVersion(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = "e" + string(rune('0'+i%10)) + string(rune('a'+i/10))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Append(ctx, &Event{ID: id, StreamID: "u-1", StreamType: StreamUser, EventType: "user.changed"})
		}(ids[i])
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if seen[e.StreamVersion] {
			t.Fatalf("version %d assigned twice", e.StreamVersion)
		}
		seen[e.StreamVersion] = true
	}
	for v := int64(1); v <= n; v++ {
		if !seen[v] {
			t.Fatalf("version %d missing", v)
		}
	}
}

func TestProcessingBookkeeping(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	e := &Event{ID: "e1", StreamID: "u-1", StreamType: StreamUser, EventType: "user.created"}
	if err := s.Append(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := s.RecordError(ctx, "e1", "boom"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, "e1")
	if got.ProcessedAt != nil || got.ProcessingError != "boom" || got.RetryCount != 1 {
		t.Fatalf("unexpected state after error: %+v", got)
	}

	pending, _ := s.ListPending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "e1" {
		t.Fatalf("expected e1 pending, got %v", pending)
	}

	if err := s.ClearError(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkProcessed(ctx, "e1", time.Now()); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "e1")
	if got.ProcessedAt == nil || got.ProcessingError != "" {
		t.Fatalf("expected processed, got %+v", got)
	}
	pending, _ = s.ListPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending events, got %v", pending)
	}
}
