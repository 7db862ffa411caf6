package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"orgcore.org/internal/dispatch"
	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
)

// Drives the cascade scenario end to end against the in-memory stack:
// build a three-node tree, freeze the root, verify the whole subtree is
// frozen, verify a mid-tree reactivation is rejected, thaw the root.
func main() {
	events := event.NewInMemory()
	proj := projection.NewInMemory()
	router := dispatch.NewRouter(events, proj)
	if err := router.CheckRoutes(); err != nil {
		log.Fatalf("route registry: %v", err)
	}
	emitter := event.NewEmitter(events, router)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	meta := event.Metadata{ActorID: "smoke", Reason: "engine smoke run"}
	emit := func(streamID, streamType, eventType string, data any) {
		if _, err := emitter.Emit(ctx, streamID, streamType, eventType, data, meta); err != nil {
			log.Fatalf("emit %s %s: %v", eventType, streamID, err)
		}
	}

	emit("org-root", event.StreamOrganization, "organization.created",
		map[string]any{"name": "Root", "kind": "internal", "path": "root"})
	emit("org-a", event.StreamOrganization, "organization.created",
		map[string]any{"name": "A", "kind": "customer", "path": "root.a"})
	emit("unit-b", event.StreamOrgUnit, "organization_unit.created",
		map[string]any{"organization_id": "org-a", "name": "B", "path": "root.a.b"})

	emit("org-root", event.StreamOrganization, "organization.deactivated", nil)
	mustActive(ctx, proj, "org-root", false)
	mustActive(ctx, proj, "org-a", false)
	mustUnitActive(ctx, proj, "unit-b", false)

	// Reactivating below a frozen ancestor must be rejected and flagged.
	_, err := emitter.Emit(ctx, "org-a", event.StreamOrganization, "organization.reactivated", nil, meta)
	var flagged *event.FlaggedError
	if !errors.As(err, &flagged) {
		log.Fatalf("expected flagged reactivation under frozen ancestor, got %v", err)
	}
	mustActive(ctx, proj, "org-a", false)

	emit("org-root", event.StreamOrganization, "organization.reactivated", nil)
	mustActive(ctx, proj, "org-root", true)
	mustActive(ctx, proj, "org-a", true)
	mustUnitActive(ctx, proj, "unit-b", true)

	pending, err := events.ListPending(ctx, 100)
	if err != nil {
		log.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		log.Fatalf("expected exactly the rejected reactivation to stay pending, got %d", len(pending))
	}

	fmt.Println("✅ engine smoke test passed: cascade, rejection and recovery all behaved")
}

func mustActive(ctx context.Context, proj projection.Store, id string, want bool) {
	org, err := proj.Organizations().Find(ctx, id)
	if err != nil {
		log.Fatalf("find %s: %v", id, err)
	}
	if org.Active != want {
		log.Fatalf("organization %s: active=%v, want %v", id, org.Active, want)
	}
}

func mustUnitActive(ctx context.Context, proj projection.Store, id string, want bool) {
	unit, err := proj.Units().Find(ctx, id)
	if err != nil {
		log.Fatalf("find unit %s: %v", id, err)
	}
	if unit.Active != want {
		log.Fatalf("unit %s: active=%v, want %v", id, unit.Active, want)
	}
}
