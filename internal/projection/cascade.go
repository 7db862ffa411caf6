package projection

import (
	"context"
	"errors"
	"fmt"

	"orgcore.org/internal/obs"
	"orgcore.org/internal/scope"
)

// ErrInactiveAncestor rejects reactivating a subtree whose parent is still
// frozen.
var ErrInactiveAncestor = errors.New("projection: ancestor is inactive")

// Cascader applies activate/deactivate transitions to a node and its whole
// subtree. The affected set is recomputed from current path containment at
// processing time; the descendant list carried in the event payload is audit
// data only and is never replayed here, so the cascade stays correct even if
// the tree changed between emission and processing.
type Cascader struct {
	store Store
}

// NewCascader wires the cascade engine to the projection store.
func NewCascader(store Store) *Cascader {
	return &Cascader{store: store}
}

// Deactivate freezes the subtree rooted at p. No precondition: freezing below
// a frozen ancestor is a no-op in effect but keeps the flags consistent.
func (c *Cascader) Deactivate(ctx context.Context, p scope.Path, eventID string) (int, error) {
	return c.setActive(ctx, p, false, eventID)
}

// Reactivate unfreezes the subtree rooted at p. The command layer already
// rejects reactivation under an inactive ancestor; the same check runs here
// again so a replayed or out-of-order event can never resurrect a subtree
// inside a frozen one.
func (c *Cascader) Reactivate(ctx context.Context, p scope.Path, eventID string) (int, error) {
	inactive, err := c.InactiveAncestor(ctx, p)
	if err != nil {
		return 0, err
	}
	if inactive != scope.Global {
		return 0, fmt.Errorf("%w: %s", ErrInactiveAncestor, inactive)
	}
	return c.setActive(ctx, p, true, eventID)
}

func (c *Cascader) setActive(ctx context.Context, p scope.Path, active bool, eventID string) (int, error) {
	if p.IsGlobal() {
		return 0, fmt.Errorf("cascade: refusing to cascade over the global scope")
	}
	nOrgs, err := c.store.Organizations().SetActiveSubtree(ctx, p, active, eventID)
	if err != nil {
		return 0, fmt.Errorf("cascade organizations under %s: %w", p, err)
	}
	nUnits, err := c.store.Units().SetActiveSubtree(ctx, p, active, eventID)
	if err != nil {
		return nOrgs, fmt.Errorf("cascade units under %s: %w", p, err)
	}
	total := nOrgs + nUnits
	obs.CascadeRows.Observe(float64(total))
	return total, nil
}

// InactiveAncestor returns the nearest inactive proper ancestor of p, or
// Global when every ancestor is active. Ancestors may live in either the
// organization or the unit table.
func (c *Cascader) InactiveAncestor(ctx context.Context, p scope.Path) (scope.Path, error) {
	for _, anc := range p.Ancestors() {
		if org, err := c.store.Organizations().FindByPath(ctx, anc); err == nil {
			if !org.Active {
				return anc, nil
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return scope.Global, err
		}
		if unit, err := c.store.Units().FindByPath(ctx, anc); err == nil {
			if !unit.Active {
				return anc, nil
			}
		} else if !errors.Is(err, ErrNotFound) {
			return scope.Global, err
		}
	}
	return scope.Global, nil
}
