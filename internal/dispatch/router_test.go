package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func newTestEngine(t *testing.T) (*event.InMemory, *projection.InMemory, *Router, *event.Emitter) {
	t.Helper()
	events := event.NewInMemory()
	proj := projection.NewInMemory()
	router := NewRouter(events, proj)
	if err := router.CheckRoutes(); err != nil {
		t.Fatalf("route registry incomplete: %v", err)
	}
	return events, proj, router, event.NewEmitter(events, router)
}

func meta() event.Metadata {
	return event.Metadata{ActorID: "admin-1", Reason: "test scenario setup"}
}

func mustEmit(t *testing.T, em *event.Emitter, streamID, streamType, eventType string, data any) string {
	t.Helper()
	id, err := em.Emit(context.Background(), streamID, streamType, eventType, data, meta())
	if err != nil {
		t.Fatalf("emit %s: %v", eventType, err)
	}
	return id
}

func TestUnknownStreamTypeIsFatal(t *testing.T) {
	events, _, _, em := newTestEngine(t)
	ctx := context.Background()

	id, err := em.Emit(ctx, "x-1", "telemetry", "telemetry.ping", nil, meta())
	var flagged *event.FlaggedError
	if !errors.As(err, &flagged) {
		t.Fatalf("expected flagged emission, got %v", err)
	}
	var route *UnrecognizedRouteError
	if !errors.As(err, &route) || route.StreamType != "telemetry" {
		t.Fatalf("expected UnrecognizedRouteError, got %v", err)
	}

	e, gerr := events.Get(ctx, id)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if e.ProcessedAt != nil || e.ProcessingError == "" {
		t.Fatalf("event should stay unprocessed with error recorded: %+v", e)
	}
}

func TestUnknownEventTypeInKnownStreamIsFatalAndReplayable(t *testing.T) {
	events, _, router, em := newTestEngine(t)
	ctx := context.Background()

	id, err := em.Emit(ctx, "u-1", event.StreamUser, "user.frobnicated", nil, meta())
	var route *UnrecognizedRouteError
	if !errors.As(err, &route) || route.EventType != "user.frobnicated" {
		t.Fatalf("expected fatal unknown event type, got %v", err)
	}

	e, _ := events.Get(ctx, id)
	if e.ProcessedAt != nil || e.ProcessingError == "" || e.RetryCount != 1 {
		t.Fatalf("unexpected event state: %+v", e)
	}

	// Replay still fails the same way; the event is never silently dropped.
	if err := router.Retry(ctx, id); !errors.As(err, &route) {
		t.Fatalf("expected same failure on retry, got %v", err)
	}
	e, _ = events.Get(ctx, id)
	if e.RetryCount != 2 {
		t.Fatalf("retry count %d, want 2", e.RetryCount)
	}
}

func TestAdminStreamIsNoOp(t *testing.T) {
	events, _, _, em := newTestEngine(t)
	ctx := context.Background()

	id, err := em.Emit(ctx, "signal-1", event.StreamAdmin, "admin.reindex_requested", nil, event.Metadata{ActorID: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := events.Get(ctx, id)
	if e.Pending() {
		t.Fatalf("admin event should be marked processed: %+v", e)
	}
}

func TestPreconditionFailureThenRetry(t *testing.T) {
	events, proj, router, em := newTestEngine(t)
	ctx := context.Background()

	// Unit arrives before its parent organization is projected.
	id, err := em.Emit(ctx, "unit-1", event.StreamOrgUnit, "organization_unit.created", map[string]any{
		"organization_id": "org-a", "name": "Billing", "path": "root.a.billing",
	}, meta())
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.created", map[string]any{
		"name": "A", "kind": "customer", "path": "root.a",
	})

	// Operator clears the error and replays; the dependency now resolves.
	if err := router.Retry(ctx, id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	e, _ := events.Get(ctx, id)
	if e.Pending() {
		t.Fatalf("event should be processed after retry: %+v", e)
	}
	unit, err := proj.Units().Find(ctx, "unit-1")
	if err != nil {
		t.Fatal(err)
	}
	if unit.Path != scope.MustParse("root.a.billing") || !unit.Active {
		t.Fatalf("unexpected unit: %+v", unit)
	}
}

func TestHandlerIdempotence(t *testing.T) {
	events, proj, router, em := newTestEngine(t)
	ctx := context.Background()

	id := mustEmit(t, em, "u-1", event.StreamUser, "user.created", map[string]any{
		"email": "a@example.com", "display_name": "Ada",
	})
	first, err := proj.Users().Find(ctx, "u-1")
	if err != nil {
		t.Fatal(err)
	}

	// Re-deliver the identical event.
	e, _ := events.Get(ctx, id)
	if err := router.Dispatch(ctx, e); err != nil {
		t.Fatalf("re-dispatch: %v", err)
	}
	second, err := proj.Users().Find(ctx, "u-1")
	if err != nil {
		t.Fatal(err)
	}
	if *first != *second {
		t.Fatalf("re-delivery changed projection state:\n%+v\n%+v", first, second)
	}
}

func TestCascadeScenario(t *testing.T) {
	_, proj, _, em := newTestEngine(t)
	ctx := context.Background()

	mustEmit(t, em, "org-root", event.StreamOrganization, "organization.created", map[string]any{
		"name": "Root", "kind": "internal", "path": "root",
	})
	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.created", map[string]any{
		"name": "A", "kind": "customer", "path": "root.a",
	})
	mustEmit(t, em, "unit-b", event.StreamOrgUnit, "organization_unit.created", map[string]any{
		"organization_id": "org-a", "name": "B", "path": "root.a.b",
	})

	// Deactivate A: both A and B freeze, root stays active.
	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.deactivated", map[string]any{
		"affected": []string{"unit-b"}, // audit only, never replayed
	})
	org, _ := proj.Organizations().Find(ctx, "org-a")
	unit, _ := proj.Units().Find(ctx, "unit-b")
	root, _ := proj.Organizations().Find(ctx, "org-root")
	if org.Active || unit.Active || !root.Active {
		t.Fatalf("cascade wrong: org=%v unit=%v root=%v", org.Active, unit.Active, root.Active)
	}

	// Reactivating B under frozen A must be rejected.
	_, err := em.Emit(ctx, "unit-b", event.StreamOrgUnit, "organization_unit.reactivated", nil, meta())
	if !errors.Is(err, projection.ErrInactiveAncestor) {
		t.Fatalf("expected ErrInactiveAncestor, got %v", err)
	}
	unit, _ = proj.Units().Find(ctx, "unit-b")
	if unit.Active {
		t.Fatal("unit resurrected under an inactive ancestor")
	}

	// Reactivate A: both come back.
	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.reactivated", nil)
	org, _ = proj.Organizations().Find(ctx, "org-a")
	unit, _ = proj.Units().Find(ctx, "unit-b")
	if !org.Active || !unit.Active {
		t.Fatalf("reactivation incomplete: org=%v unit=%v", org.Active, unit.Active)
	}
}

func TestPhoneRemovalDisablesSMSPreference(t *testing.T) {
	_, proj, _, em := newTestEngine(t)
	ctx := context.Background()

	mustEmit(t, em, "u-1", event.StreamUser, "user.created", map[string]any{"email": "a@example.com"})
	mustEmit(t, em, "u-1", event.StreamContact, "contact.phone_set", map[string]any{"number": "+4912345", "verified": true})
	mustEmit(t, em, "u-1", event.StreamContact, "contact.preference_set", map[string]any{
		"channel": "sms", "target": "+4912345", "enabled": true,
	})
	mustEmit(t, em, "u-1", event.StreamContact, "contact.preference_set", map[string]any{
		"channel": "email", "target": "a@example.com", "enabled": true,
	})

	mustEmit(t, em, "u-1", event.StreamContact, "contact.phone_removed", map[string]any{"number": "+4912345"})

	phones, _ := proj.Contacts().ListPhones(ctx, "u-1")
	if len(phones) != 0 {
		t.Fatalf("phone row should be hard-deleted, got %v", phones)
	}
	prefs, _ := proj.Contacts().ListPrefs(ctx, "u-1")
	for _, p := range prefs {
		switch p.Channel {
		case projection.ChannelSMS:
			if p.Enabled {
				t.Fatalf("sms pref should be disabled: %+v", p)
			}
		case projection.ChannelEmail:
			if !p.Enabled {
				t.Fatalf("email pref should be untouched: %+v", p)
			}
		}
	}
}

func TestLinkRoutingAndCarveOut(t *testing.T) {
	_, proj, _, em := newTestEngine(t)
	ctx := context.Background()

	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.created", map[string]any{
		"name": "A", "kind": "customer", "path": "root.a",
	})

	// Generic junction events route to the relationship handler whatever the
	// stream type says.
	mustEmit(t, em, "rel-1", event.StreamRelationship, "membership.linked", map[string]any{
		"left_id": "u-1", "right_id": "org-a",
	})
	links, _ := proj.Links().List(ctx, "membership")
	if len(links) != 1 || links[0].LeftID != "u-1" {
		t.Fatalf("unexpected links: %v", links)
	}

	// Carve-out: suffix says link, semantics say organization aggregate.
	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.domain.linked", map[string]any{
		"domain": "a.example.com",
	})
	org, _ := proj.Organizations().Find(ctx, "org-a")
	if org.Domain != "a.example.com" {
		t.Fatalf("carve-out not applied: %+v", org)
	}
	if links, _ := proj.Links().List(ctx, "organization"); len(links) != 0 {
		t.Fatal("carve-out event must not create a junction row")
	}

	mustEmit(t, em, "rel-1", event.StreamRelationship, "membership.unlinked", map[string]any{
		"left_id": "u-1", "right_id": "org-a",
	})
	if links, _ := proj.Links().List(ctx, "membership"); len(links) != 0 {
		t.Fatalf("link should be removed, got %v", links)
	}
}

var seedRowPattern = regexp.MustCompile(`(?s)\('(seed-[^']+)',\s*'([^']+)',\s*'([^']+)',\s*\d+,\s*'([^']+)',\s*'(\{.*?\})',`)

func TestPermissionCatalogSeedReplays(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "ops", "migrations", "seeds", "0001_permission_catalog.sql"))
	if err != nil {
		t.Fatal(err)
	}
	rows := seedRowPattern.FindAllStringSubmatch(string(raw), -1)
	if len(rows) == 0 {
		t.Fatal("no seed rows parsed")
	}

	events, proj, router, _ := newTestEngine(t)
	ctx := context.Background()

	// Every bootstrap row must route: a permission catalog stuck in pending
	// locks every write endpoint out of a fresh deployment.
	for _, row := range rows {
		e := &event.Event{
			ID:         row[1],
			StreamID:   row[2],
			StreamType: row[3],
			EventType:  row[4],
			Data:       json.RawMessage(row[5]),
		}
		if err := events.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
		if err := router.Dispatch(ctx, *e); err != nil {
			t.Fatalf("seed row %s does not dispatch: %v", e.ID, err)
		}
	}

	for _, key := range []string{
		"organization.read", "organization.write",
		"user.read", "user.write",
		"role.write", "grant.write",
	} {
		if _, err := proj.Permissions().Find(ctx, key); err != nil {
			t.Fatalf("seeded permission %s not projected: %v", key, err)
		}
	}
}

func TestNotifierReceivesAllowListedTypesOnly(t *testing.T) {
	events := event.NewInMemory()
	proj := projection.NewInMemory()
	var got []string
	router := NewRouter(events, proj, WithNotifier(notifierFunc(func(e event.Event) {
		got = append(got, e.EventType)
	})))
	em := event.NewEmitter(events, router)

	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.created", map[string]any{
		"name": "A", "kind": "customer", "path": "root.a",
	})
	mustEmit(t, em, "org-a", event.StreamOrganization, "organization.changed", map[string]any{"name": "A2"})

	if len(got) != 1 || got[0] != "organization.created" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

type notifierFunc func(e event.Event)

func (f notifierFunc) Publish(e event.Event) { f(e) }
