package projection

import (
	"testing"
	"time"
)

func TestGrantWindowBoundsAreInclusive(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	till := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	g := Grant{ID: "g-1", ValidFrom: &from, ValidUntil: &till}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{from.Add(-time.Second), false},
		{from, true},
		{till, true},
		{till.Add(time.Second), false},
	}
	for _, c := range cases {
		if got := g.ActiveAt(c.at); got != c.want {
			t.Fatalf("ActiveAt(%s) = %v, want %v", c.at, got, c.want)
		}
	}

	open := Grant{ID: "g-2"}
	if !open.ActiveAt(time.Now()) {
		t.Fatal("unbounded grant should always apply")
	}
}

func TestScheduleWindowBoundsAreInclusive(t *testing.T) {
	starts := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ends := time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC)
	s := Schedule{UserID: "u-1", OrganizationID: "org-a", StartsAt: &starts, EndsAt: &ends}

	if s.Allows(starts.Add(-time.Minute)) {
		t.Fatal("access before the window should be denied")
	}
	if !s.Allows(starts) || !s.Allows(ends) {
		t.Fatal("window bounds should be inclusive")
	}
	if s.Allows(ends.Add(time.Minute)) {
		t.Fatal("access past the window should be denied")
	}
}
