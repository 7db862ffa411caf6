package dispatch

import (
	"context"
	"errors"
	"fmt"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func (r *Router) organizationRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"organization.created":     r.handleOrgCreated,
		"organization.changed":     r.handleOrgChanged,
		"organization.deactivated": r.handleOrgDeactivated,
		"organization.reactivated": r.handleOrgReactivated,
		"organization.removed":     r.handleOrgRemoved,
		// Carve-outs: link-suffixed types that mutate the organization row
		// itself rather than a junction table.
		"organization.domain.linked":   r.handleOrgDomainLinked,
		"organization.domain.unlinked": r.handleOrgDomainUnlinked,
	}
}

func (r *Router) handleOrgCreated(ctx context.Context, e event.Event) error {
	var p struct {
		Name   string `json:"name"`
		Kind   string `json:"kind"`
		Domain string `json:"domain"`
		Path   string `json:"path"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	path, err := scope.Parse(p.Path)
	if err != nil {
		return err
	}
	if path.IsGlobal() {
		return fmt.Errorf("organization %s: path is required", e.StreamID)
	}
	// A nested organization needs its parent projected first.
	if parent := path.Parent(); !parent.IsGlobal() {
		if _, err := r.proj.Organizations().FindByPath(ctx, parent); err != nil {
			if errors.Is(err, projection.ErrNotFound) {
				return &PreconditionError{Missing: "parent organization", Detail: parent.String()}
			}
			return err
		}
	}
	return r.proj.Organizations().Upsert(ctx, &projection.Organization{
		ID:          e.StreamID,
		Name:        p.Name,
		Kind:        p.Kind,
		Domain:      p.Domain,
		Path:        path,
		Active:      true,
		LastEventID: e.ID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.CreatedAt,
	})
}

func (r *Router) handleOrgChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Name *string `json:"name"`
		Kind *string `json:"kind"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	org, err := r.findOrg(ctx, e.StreamID)
	if err != nil {
		return err
	}
	if p.Name != nil {
		org.Name = *p.Name
	}
	if p.Kind != nil {
		org.Kind = *p.Kind
	}
	org.LastEventID = e.ID
	org.UpdatedAt = e.CreatedAt
	return r.proj.Organizations().Upsert(ctx, org)
}

// handleOrgDeactivated freezes the organization and its whole subtree. The
// payload's affected-descendant list is emission-time audit data; the cascade
// recomputes the set from current path containment.
func (r *Router) handleOrgDeactivated(ctx context.Context, e event.Event) error {
	org, err := r.findOrg(ctx, e.StreamID)
	if err != nil {
		return err
	}
	_, err = r.cascade.Deactivate(ctx, org.Path, e.ID)
	return err
}

func (r *Router) handleOrgReactivated(ctx context.Context, e event.Event) error {
	org, err := r.findOrg(ctx, e.StreamID)
	if err != nil {
		return err
	}
	_, err = r.cascade.Reactivate(ctx, org.Path, e.ID)
	return err
}

func (r *Router) handleOrgRemoved(ctx context.Context, e event.Event) error {
	err := r.proj.Organizations().SoftDelete(ctx, e.StreamID, e.ID, e.CreatedAt)
	if errors.Is(err, projection.ErrNotFound) {
		return &PreconditionError{Missing: "organization", Detail: e.StreamID}
	}
	return err
}

func (r *Router) handleOrgDomainLinked(ctx context.Context, e event.Event) error {
	var p struct {
		Domain string `json:"domain"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	org, err := r.findOrg(ctx, e.StreamID)
	if err != nil {
		return err
	}
	org.Domain = p.Domain
	org.LastEventID = e.ID
	org.UpdatedAt = e.CreatedAt
	return r.proj.Organizations().Upsert(ctx, org)
}

func (r *Router) handleOrgDomainUnlinked(ctx context.Context, e event.Event) error {
	var p struct {
		Domain string `json:"domain"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	org, err := r.findOrg(ctx, e.StreamID)
	if err != nil {
		return err
	}
	// Unlinking a domain that is no longer attached is a no-op (re-delivery).
	if org.Domain == p.Domain || p.Domain == "" {
		org.Domain = ""
		org.LastEventID = e.ID
		org.UpdatedAt = e.CreatedAt
		return r.proj.Organizations().Upsert(ctx, org)
	}
	return nil
}

func (r *Router) findOrg(ctx context.Context, id string) (*projection.Organization, error) {
	org, err := r.proj.Organizations().Find(ctx, id)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, &PreconditionError{Missing: "organization", Detail: id}
		}
		return nil, err
	}
	return org, nil
}
