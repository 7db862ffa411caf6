package dispatch

import (
	"context"
	"errors"
	"fmt"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func (r *Router) unitRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"organization_unit.created":     r.handleUnitCreated,
		"organization_unit.changed":     r.handleUnitChanged,
		"organization_unit.deactivated": r.handleUnitDeactivated,
		"organization_unit.reactivated": r.handleUnitReactivated,
		"organization_unit.removed":     r.handleUnitRemoved,
	}
}

func (r *Router) handleUnitCreated(ctx context.Context, e event.Event) error {
	var p struct {
		OrganizationID string `json:"organization_id"`
		Name           string `json:"name"`
		Path           string `json:"path"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	path, err := scope.Parse(p.Path)
	if err != nil {
		return err
	}
	if path.IsGlobal() || path.Parent().IsGlobal() {
		return fmt.Errorf("organization_unit %s: path must sit below a parent", e.StreamID)
	}
	if _, err := r.proj.Organizations().Find(ctx, p.OrganizationID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "organization", Detail: p.OrganizationID}
		}
		return err
	}
	if err := r.requireParentNode(ctx, path.Parent()); err != nil {
		return err
	}
	// A node is never active while an ancestor is frozen.
	inactive, err := r.cascade.InactiveAncestor(ctx, path)
	if err != nil {
		return err
	}
	return r.proj.Units().Upsert(ctx, &projection.OrgUnit{
		ID:             e.StreamID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Path:           path,
		Active:         inactive.IsGlobal(),
		LastEventID:    e.ID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.CreatedAt,
	})
}

func (r *Router) handleUnitChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Name *string `json:"name"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	unit, err := r.findUnit(ctx, e.StreamID)
	if err != nil {
		return err
	}
	if p.Name != nil {
		unit.Name = *p.Name
	}
	unit.LastEventID = e.ID
	unit.UpdatedAt = e.CreatedAt
	return r.proj.Units().Upsert(ctx, unit)
}

func (r *Router) handleUnitDeactivated(ctx context.Context, e event.Event) error {
	unit, err := r.findUnit(ctx, e.StreamID)
	if err != nil {
		return err
	}
	_, err = r.cascade.Deactivate(ctx, unit.Path, e.ID)
	return err
}

func (r *Router) handleUnitReactivated(ctx context.Context, e event.Event) error {
	unit, err := r.findUnit(ctx, e.StreamID)
	if err != nil {
		return err
	}
	_, err = r.cascade.Reactivate(ctx, unit.Path, e.ID)
	return err
}

func (r *Router) handleUnitRemoved(ctx context.Context, e event.Event) error {
	err := r.proj.Units().SoftDelete(ctx, e.StreamID, e.ID, e.CreatedAt)
	if errors.Is(err, projection.ErrNotFound) {
		return &PreconditionError{Missing: "organization_unit", Detail: e.StreamID}
	}
	return err
}

func (r *Router) findUnit(ctx context.Context, id string) (*projection.OrgUnit, error) {
	unit, err := r.proj.Units().Find(ctx, id)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, &PreconditionError{Missing: "organization_unit", Detail: id}
		}
		return nil, err
	}
	return unit, nil
}

// requireParentNode checks the parent path is projected, in either tree table.
func (r *Router) requireParentNode(ctx context.Context, parent scope.Path) error {
	if _, err := r.proj.Organizations().FindByPath(ctx, parent); err == nil {
		return nil
	} else if !errors.Is(err, projection.ErrNotFound) {
		return err
	}
	if _, err := r.proj.Units().FindByPath(ctx, parent); err == nil {
		return nil
	} else if !errors.Is(err, projection.ErrNotFound) {
		return err
	}
	return &PreconditionError{Missing: "parent node", Detail: parent.String()}
}
