package scope

import "testing"

func TestParseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"root..a", ".root", "root.", "root.A", "root a"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	p, err := Parse("root.a_1.b-2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Depth() != 3 {
		t.Fatalf("unexpected depth: %d", p.Depth())
	}
}

func TestContains(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"", "root.a", true},
		{"root.a", "", false},
		{"root.a", "root.a", true},
		{"root.a", "root.a.b", true},
		{"root.a", "root.ab", false},
		{"root.a.b", "root.a", false},
		{"root.b", "root.a.b", false},
	}
	for _, c := range cases {
		if got := Path(c.a).Contains(Path(c.b)); got != c.want {
			t.Fatalf("Contains(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestParentAndAncestors(t *testing.T) {
	p := MustParse("root.a.b")
	if p.Parent() != MustParse("root.a") {
		t.Fatalf("unexpected parent: %s", p.Parent())
	}
	anc := p.Ancestors()
	if len(anc) != 2 || anc[0] != MustParse("root.a") || anc[1] != MustParse("root") {
		t.Fatalf("unexpected ancestors: %v", anc)
	}
	if MustParse("root").Parent() != Global {
		t.Fatal("expected global parent for root")
	}
}
