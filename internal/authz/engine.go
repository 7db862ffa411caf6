package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

var (
	ErrNotFound     = errors.New("authz: not found")
	ErrInvalidInput = errors.New("authz: invalid input")
)

// EffectivePermission is one capability a principal holds, tagged with the
// widest scope it can be exercised at. A global scope means unrestricted.
type EffectivePermission struct {
	Key   string     `json:"key"`
	Scope scope.Path `json:"scope,omitempty"`
}

// Engine computes effective permission sets and enforces delegation
// constraints over the projections. It holds no per-request state; callers
// pass everything explicitly.
type Engine struct {
	store projection.Store
}

// NewEngine wires the engine to the projection store.
func NewEngine(store projection.Store) (*Engine, error) {
	if store == nil {
		return nil, errors.New("authz: projection store is required")
	}
	return &Engine{store: store}, nil
}

// EffectiveSet aggregates every grant of the user whose validity window
// contains at. Each role permission is tagged with the grant's reach: the
// grant's own scope when it narrows the role's bound, otherwise the bound,
// otherwise global. The result is collapsed to the maximal scopes per
// permission key: a scope contained by a wider one for the same key is
// dropped, but incomparable sibling scopes (root.a and root.b) are all kept
// so nothing the user genuinely holds disappears. Sorted by key, then scope.
func (en *Engine) EffectiveSet(ctx context.Context, userID string, at time.Time) ([]EffectivePermission, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	grants, err := en.store.Grants().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants for %s: %w", userID, err)
	}

	widest := make(map[string][]scope.Path)
	for _, g := range grants {
		if !g.ActiveAt(at) {
			continue
		}
		role, err := en.store.Roles().Find(ctx, g.RoleID)
		if err != nil {
			if errors.Is(err, projection.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if role.DeletedAt != nil {
			continue
		}
		reach := grantReach(g.Scope, role.ScopeBound)

		rps, err := en.store.RolePermissions().ListByRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, rp := range rps {
			perm, err := en.store.Permissions().Find(ctx, rp.PermissionKey)
			if err != nil {
				if errors.Is(err, projection.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if perm.Retired {
				continue
			}
			widest[perm.Key] = addMaximalScope(widest[perm.Key], reach)
		}
	}

	out := make([]EffectivePermission, 0, len(widest))
	for key, scopes := range widest {
		for _, sc := range scopes {
			out = append(out, EffectivePermission{Key: key, Scope: sc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Scope < out[j].Scope
	})
	return out, nil
}

// addMaximalScope folds reach into the per-key scope set, dropping any scope
// contained by another.
func addMaximalScope(scopes []scope.Path, reach scope.Path) []scope.Path {
	for _, sc := range scopes {
		if sc.Contains(reach) {
			return scopes
		}
	}
	kept := scopes[:0]
	for _, sc := range scopes {
		if !reach.Contains(sc) {
			kept = append(kept, sc)
		}
	}
	return append(kept, reach)
}

// grantReach resolves the scope a grant can be exercised at. The grant's own
// scope wins when the role's bound contains it; a grant pointing outside the
// bound is clipped back to the bound.
func grantReach(grantScope, bound scope.Path) scope.Path {
	if grantScope.IsGlobal() {
		return bound
	}
	if bound.IsGlobal() || bound.Contains(grantScope) {
		return grantScope
	}
	return bound
}
