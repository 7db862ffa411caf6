package scope

import (
	"errors"
	"fmt"
	"strings"
)

// Path is a materialized hierarchy location such as "root.a.b". Segments are
// dot separated, ordered root first. The zero Path means "global": it contains
// every other path and is contained by none but itself.
type Path string

// Global is the unrestricted scope.
const Global Path = ""

var ErrInvalidPath = errors.New("scope: invalid path")

// Parse validates s and returns it as a Path. The empty string parses to Global.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Global, nil
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return Global, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		}
		for _, r := range seg {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
				continue
			}
			return Global, fmt.Errorf("%w: segment %q in %q", ErrInvalidPath, seg, s)
		}
	}
	return Path(s), nil
}

// MustParse is Parse for paths known valid at compile time.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsGlobal reports whether p is the unrestricted scope.
func (p Path) IsGlobal() bool { return p == Global }

// String returns the dotted form.
func (p Path) String() string { return string(p) }

// Contains reports whether p is an ancestor of other or equal to it.
// Global contains everything. Containment is segment-wise: "root.a" contains
// "root.a.b" but not "root.ab".
func (p Path) Contains(other Path) bool {
	if p.IsGlobal() {
		return true
	}
	if other.IsGlobal() {
		return false
	}
	if p == other {
		return true
	}
	return strings.HasPrefix(string(other), string(p)+".")
}

// Parent returns the path one level up, or Global for a single-segment path.
func (p Path) Parent() Path {
	i := strings.LastIndexByte(string(p), '.')
	if i < 0 {
		return Global
	}
	return p[:i]
}

// Child returns p extended by one segment.
func (p Path) Child(segment string) Path {
	if p.IsGlobal() {
		return Path(segment)
	}
	return Path(string(p) + "." + segment)
}

// Depth returns the number of segments; Global has depth zero.
func (p Path) Depth() int {
	if p.IsGlobal() {
		return 0
	}
	return strings.Count(string(p), ".") + 1
}

// Ancestors returns every proper ancestor of p, nearest first. Global is not
// included.
func (p Path) Ancestors() []Path {
	var out []Path
	for cur := p.Parent(); !cur.IsGlobal(); cur = cur.Parent() {
		out = append(out, cur)
	}
	return out
}

// Wider reports whether p reaches at least as far as other: equal paths, or p
// an ancestor of other, or p global.
func (p Path) Wider(other Path) bool {
	return p.Contains(other)
}
