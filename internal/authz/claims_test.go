package authz

import (
	"context"
	"testing"
	"time"

	"orgcore.org/internal/projection"
)

func TestBuildClaims(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
	}); err != nil {
		t.Fatal(err)
	}

	c, err := en.BuildClaims(ctx, "u-1", "org-a", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if c.Blocked {
		t.Fatalf("unexpected block: %+v", c)
	}
	if c.OrganizationKind != "customer" {
		t.Fatalf("missing organization kind: %+v", c)
	}
	if !c.HasPermission("org.write") || !c.HasPermission("user.write") {
		t.Fatalf("missing permissions: %+v", c)
	}
	if c.HasPermission("grant.write") {
		t.Fatal("unexpected permission")
	}
}

func TestBuildClaimsBlockedOutsideWindow(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	if err := s.Grants().Upsert(ctx, &projection.Grant{
		ID: "g-1", UserID: "u-1", RoleID: "r-admin", OrganizationID: "org-a",
	}); err != nil {
		t.Fatal(err)
	}
	starts := time.Now().Add(24 * time.Hour)
	if err := s.Schedules().Upsert(ctx, &projection.Schedule{
		UserID: "u-1", OrganizationID: "org-a", StartsAt: &starts,
	}); err != nil {
		t.Fatal(err)
	}

	c, err := en.BuildClaims(ctx, "u-1", "org-a", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !c.Blocked || c.BlockReason != BlockOutsideWindow {
		t.Fatalf("expected blocked claims, got %+v", c)
	}
	if len(c.Permissions) != 0 {
		t.Fatalf("blocked claims must carry no permissions: %+v", c)
	}
	if c.HasPermission("org.write") {
		t.Fatal("blocked claims granted a permission")
	}

	// Once the window opens the same recomputation succeeds.
	c, err = en.BuildClaims(ctx, "u-1", "org-a", starts.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if c.Blocked {
		t.Fatalf("expected open window, got %+v", c)
	}
}

func TestBuildClaimsBlockedForInactivePrincipals(t *testing.T) {
	s, en := seedRBAC(t)
	ctx := context.Background()

	u, _ := s.Users().Find(ctx, "u-1")
	u.Active = false
	if err := s.Users().Upsert(ctx, u); err != nil {
		t.Fatal(err)
	}
	c, err := en.BuildClaims(ctx, "u-1", "org-a", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !c.Blocked || c.BlockReason != BlockUserInactive {
		t.Fatalf("expected user_inactive block, got %+v", c)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("ORGCORE_AUTH_SECRET", "test-secret-value")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	claims := Claims{
		UserID:           "u-1",
		OrganizationID:   "org-a",
		OrganizationKind: "customer",
		Permissions:      []EffectivePermission{{Key: "org.write"}},
		IssuedAt:         time.Now().UTC(),
	}
	token, err := GenerateToken(claims, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u-1" || !got.HasPermission("org.write") {
		t.Fatalf("unexpected claims: %+v", got)
	}

	if _, err := ParseToken(token + "x"); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := ClaimsFromContext(ctx); ok {
		t.Fatal("claims found in empty context")
	}
	ctx = ContextWithClaims(ctx, Claims{UserID: "u-7"})
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.UserID != "u-7" {
		t.Fatalf("unexpected claims: %+v ok=%v", c, ok)
	}
}
