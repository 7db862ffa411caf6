package authz

import (
	"context"
	"testing"
	"time"

	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func seedRBAC(t *testing.T) (projection.Store, *Engine) {
	t.Helper()
	ctx := context.Background()
	s := projection.NewInMemory()

	if err := s.Organizations().Upsert(ctx, &projection.Organization{
		ID: "org-a", Name: "A", Kind: "customer", Path: scope.MustParse("root.a"), Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Users().Upsert(ctx, &projection.User{ID: "u-1", Email: "a@example.com", Active: true}); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"org.write", "user.write", "grant.write"} {
		if err := s.Permissions().Upsert(ctx, &projection.Permission{Key: key}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Roles().Upsert(ctx, &projection.Role{ID: "r-admin", OrganizationID: "org-a", Name: "admin"}); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"org.write", "user.write"} {
		if err := s.RolePermissions().Add(ctx, &projection.RolePermission{RoleID: "r-admin", PermissionKey: key}); err != nil {
			t.Fatal(err)
		}
	}

	en, err := NewEngine(s)
	if err != nil {
		t.Fatal(err)
	}
	return s, en
}

func TestEffectiveSetScopeTaggingAndWidestWins(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	// Two grants of the same role: one narrowed to root.a.b, one at root.a.
	// The widest scope must win per permission.
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		Scope: scope.MustParse("root.a.b"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-2", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		Scope: scope.MustParse("root.a"),
	}); err != nil {
		t.Fatal(err)
	}

	set, err := en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 permissions, got %v", set)
	}
	for _, ep := range set {
		if ep.Scope != scope.MustParse("root.a") {
			t.Fatalf("expected widest scope root.a for %s, got %q", ep.Key, ep.Scope)
		}
	}
}

func TestEffectiveSetKeepsSiblingScopes(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	// Two grants at incomparable sibling scopes: neither may swallow the
	// other, the user can act at both.
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		Scope: scope.MustParse("root.a"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-2", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		Scope: scope.MustParse("root.b"),
	}); err != nil {
		t.Fatal(err)
	}

	set, err := en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	scopesFor := func(key string) []scope.Path {
		var out []scope.Path
		for _, ep := range set {
			if ep.Key == key {
				out = append(out, ep.Scope)
			}
		}
		return out
	}
	for _, key := range []string{"org.write", "user.write"} {
		got := scopesFor(key)
		if len(got) != 2 || got[0] != scope.MustParse("root.a") || got[1] != scope.MustParse("root.b") {
			t.Fatalf("%s: expected both sibling scopes, got %v", key, got)
		}
	}

	// Delegation into either sibling subtree succeeds with the full set.
	if v := CheckDelegation(set, []string{"org.write"}, scope.MustParse("root.b.x")); !v.OK() {
		t.Fatalf("sibling scope lost in collapse: %v", v)
	}
	if v := CheckDelegation(set, []string{"org.write"}, scope.MustParse("root.c")); v.OK() {
		t.Fatal("unheld subtree should stay unreachable")
	}
}

func TestEffectiveSetHonorsValidityWindow(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	expired := time.Now().Add(-24 * time.Hour)
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		ValidFrom: &past, ValidUntil: &expired,
	}); err != nil {
		t.Fatal(err)
	}

	set, err := en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Fatalf("expired grant leaked permissions: %v", set)
	}

	// The same query evaluated inside the window sees them.
	set, err = en.EffectiveSet(ctx, "u-1", past.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 permissions inside window, got %v", set)
	}
}

func TestEffectiveSetSkipsRetiredPermissionsAndDeletedRoles(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
	}); err != nil {
		t.Fatal(err)
	}
	perm, _ := s.Permissions().Find(ctx, "user.write")
	perm.Retired = true
	if err := s.Permissions().Upsert(ctx, perm); err != nil {
		t.Fatal(err)
	}

	set, err := en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 1 || set[0].Key != "org.write" {
		t.Fatalf("retired permission should be gone: %v", set)
	}

	if err := s.Roles().SoftDelete(ctx, "r-admin", "evt-x", time.Now()); err != nil {
		t.Fatal(err)
	}
	set, err = en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Fatalf("deleted role still grants: %v", set)
	}
}

func TestGrantReachClippedToRoleBound(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	role, _ := s.Roles().Find(ctx, "r-admin")
	role.ScopeBound = scope.MustParse("root.a")
	if err := s.Roles().Upsert(ctx, role); err != nil {
		t.Fatal(err)
	}
	// Grant scope points outside the bound; the bound wins.
	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
		Scope: scope.MustParse("root.b"),
	}); err != nil {
		t.Fatal(err)
	}

	set, err := en.EffectiveSet(ctx, "u-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, ep := range set {
		if ep.Scope != scope.MustParse("root.a") {
			t.Fatalf("expected reach clipped to root.a, got %q", ep.Scope)
		}
	}
}

func TestCheckDelegation(t *testing.T) {
	actor := []EffectivePermission{
		{Key: "org.write", Scope: scope.MustParse("root.a")},
		{Key: "user.write", Scope: scope.Global},
	}

	// Held permission, contained scope: fine.
	if v := CheckDelegation(actor, []string{"org.write"}, scope.MustParse("root.a.b")); !v.OK() {
		t.Fatalf("unexpected violations: %v", v)
	}

	// Unheld permission and out-of-reach scope, reported together.
	v := CheckDelegation(actor, []string{"grant.write", "org.write"}, scope.MustParse("root.b"))
	if len(v) != 2 {
		t.Fatalf("expected complete violation list, got %v", v)
	}
	if v[0].Code != CodeSubsetOnly || v[0].PermissionKey != "grant.write" {
		t.Fatalf("unexpected first violation: %+v", v[0])
	}
	if v[1].Code != CodeScope || v[1].PermissionKey != "org.write" {
		t.Fatalf("unexpected second violation: %+v", v[1])
	}

	// An unbounded target needs an unbounded actor.
	if v := CheckDelegation(actor, []string{"org.write"}, scope.Global); v.OK() {
		t.Fatal("scoped actor must not assign an unrestricted role")
	}
	if v := CheckDelegation(actor, []string{"user.write"}, scope.Global); !v.OK() {
		t.Fatalf("global actor should reach global target: %v", v)
	}
}
