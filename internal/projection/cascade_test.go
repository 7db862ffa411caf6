package projection

import (
	"context"
	"errors"
	"testing"

	"orgcore.org/internal/scope"
)

func seedTree(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	orgs := []*Organization{
		{ID: "root", Name: "Root", Path: scope.MustParse("root"), Active: true},
		{ID: "a", Name: "A", Path: scope.MustParse("root.a"), Active: true},
		{ID: "b", Name: "B", Path: scope.MustParse("root.b"), Active: true},
	}
	for _, o := range orgs {
		if err := s.Organizations().Upsert(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	units := []*OrgUnit{
		{ID: "ab", OrganizationID: "a", Name: "AB", Path: scope.MustParse("root.a.b"), Active: true},
		{ID: "abc", OrganizationID: "a", Name: "ABC", Path: scope.MustParse("root.a.b.c"), Active: true},
		{ID: "bx", OrganizationID: "b", Name: "BX", Path: scope.MustParse("root.b.x"), Active: true},
	}
	for _, u := range units {
		if err := s.Units().Upsert(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
}

func activeByPath(t *testing.T, s Store, p string) bool {
	t.Helper()
	ctx := context.Background()
	if org, err := s.Organizations().FindByPath(ctx, scope.MustParse(p)); err == nil {
		return org.Active
	}
	unit, err := s.Units().FindByPath(ctx, scope.MustParse(p))
	if err != nil {
		t.Fatalf("no node at %s: %v", p, err)
	}
	return unit.Active
}

func TestDeactivateCascadesExactSubtree(t *testing.T) {
	s := NewInMemory()
	seedTree(t, s)
	c := NewCascader(s)

	n, err := c.Deactivate(context.Background(), scope.MustParse("root.a"), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 { // root.a, root.a.b, root.a.b.c
		t.Fatalf("expected 3 rows, got %d", n)
	}
	for p, want := range map[string]bool{
		"root":       true,
		"root.a":     false,
		"root.a.b":   false,
		"root.a.b.c": false,
		"root.b":     true,
		"root.b.x":   true,
	} {
		if got := activeByPath(t, s, p); got != want {
			t.Fatalf("node %s active=%v, want %v", p, got, want)
		}
	}
}

func TestReactivateRejectedUnderInactiveAncestor(t *testing.T) {
	s := NewInMemory()
	seedTree(t, s)
	c := NewCascader(s)
	ctx := context.Background()

	if _, err := c.Deactivate(ctx, scope.MustParse("root.a"), "evt-1"); err != nil {
		t.Fatal(err)
	}
	// root.a is frozen, so its child cannot come back on its own.
	if _, err := c.Reactivate(ctx, scope.MustParse("root.a.b"), "evt-2"); !errors.Is(err, ErrInactiveAncestor) {
		t.Fatalf("expected ErrInactiveAncestor, got %v", err)
	}
	// Reactivating the frozen root of the cascade restores the whole subtree.
	n, err := c.Reactivate(ctx, scope.MustParse("root.a"), "evt-3")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	for _, p := range []string{"root.a", "root.a.b", "root.a.b.c"} {
		if !activeByPath(t, s, p) {
			t.Fatalf("node %s still inactive", p)
		}
	}
}

func TestCascadeIdempotent(t *testing.T) {
	s := NewInMemory()
	seedTree(t, s)
	c := NewCascader(s)
	ctx := context.Background()

	if _, err := c.Deactivate(ctx, scope.MustParse("root.a"), "evt-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Deactivate(ctx, scope.MustParse("root.a"), "evt-1"); err != nil {
		t.Fatal(err)
	}
	if activeByPath(t, s, "root.a") || activeByPath(t, s, "root.a.b") {
		t.Fatal("subtree should stay inactive after re-delivery")
	}
}
