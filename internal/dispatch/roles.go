package dispatch

import (
	"context"
	"errors"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func (r *Router) roleRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"role.created":            r.handleRoleCreated,
		"role.changed":            r.handleRoleChanged,
		"role.removed":            r.handleRoleRemoved,
		"role.permission_granted": r.handleRolePermissionGranted,
		"role.permission_revoked": r.handleRolePermissionRevoked,
	}
}

func (r *Router) permissionRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"permission.registered": r.handlePermissionRegistered,
		"permission.changed":    r.handlePermissionChanged,
		"permission.retired":    r.handlePermissionRetired,
	}
}

func (r *Router) handleRoleCreated(ctx context.Context, e event.Event) error {
	var p struct {
		OrganizationID string `json:"organization_id"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		ScopeBound     string `json:"scope_bound"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	bound, err := scope.Parse(p.ScopeBound)
	if err != nil {
		return err
	}
	if _, err := r.proj.Organizations().Find(ctx, p.OrganizationID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "organization", Detail: p.OrganizationID}
		}
		return err
	}
	return r.proj.Roles().Upsert(ctx, &projection.Role{
		ID:             e.StreamID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
		ScopeBound:     bound,
		LastEventID:    e.ID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.CreatedAt,
	})
}

func (r *Router) handleRoleChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		ScopeBound  *string `json:"scope_bound"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	role, err := r.findRole(ctx, e.StreamID)
	if err != nil {
		return err
	}
	if p.Name != nil {
		role.Name = *p.Name
	}
	if p.Description != nil {
		role.Description = *p.Description
	}
	if p.ScopeBound != nil {
		bound, err := scope.Parse(*p.ScopeBound)
		if err != nil {
			return err
		}
		role.ScopeBound = bound
	}
	role.LastEventID = e.ID
	role.UpdatedAt = e.CreatedAt
	return r.proj.Roles().Upsert(ctx, role)
}

func (r *Router) handleRoleRemoved(ctx context.Context, e event.Event) error {
	err := r.proj.Roles().SoftDelete(ctx, e.StreamID, e.ID, e.CreatedAt)
	if errors.Is(err, projection.ErrNotFound) {
		return &PreconditionError{Missing: "role", Detail: e.StreamID}
	}
	return err
}

func (r *Router) handleRolePermissionGranted(ctx context.Context, e event.Event) error {
	var p struct {
		PermissionKey string `json:"permission_key"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if _, err := r.findRole(ctx, e.StreamID); err != nil {
		return err
	}
	if _, err := r.proj.Permissions().Find(ctx, p.PermissionKey); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "permission", Detail: p.PermissionKey}
		}
		return err
	}
	return r.proj.RolePermissions().Add(ctx, &projection.RolePermission{
		RoleID:        e.StreamID,
		PermissionKey: p.PermissionKey,
		LastEventID:   e.ID,
		CreatedAt:     e.CreatedAt,
	})
}

func (r *Router) handleRolePermissionRevoked(ctx context.Context, e event.Event) error {
	var p struct {
		PermissionKey string `json:"permission_key"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	// Hard delete; removing an absent link is a no-op on re-delivery.
	return r.proj.RolePermissions().Remove(ctx, e.StreamID, p.PermissionKey)
}

func (r *Router) handlePermissionRegistered(ctx context.Context, e event.Event) error {
	var p struct {
		Area        string `json:"area"`
		Action      string `json:"action"`
		Description string `json:"description"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	return r.proj.Permissions().Upsert(ctx, &projection.Permission{
		Key:         e.StreamID,
		Area:        p.Area,
		Action:      p.Action,
		Description: p.Description,
		LastEventID: e.ID,
		CreatedAt:   e.CreatedAt,
	})
}

func (r *Router) handlePermissionChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Description *string `json:"description"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	perm, err := r.findPermission(ctx, e.StreamID)
	if err != nil {
		return err
	}
	if p.Description != nil {
		perm.Description = *p.Description
	}
	perm.LastEventID = e.ID
	return r.proj.Permissions().Upsert(ctx, perm)
}

func (r *Router) handlePermissionRetired(ctx context.Context, e event.Event) error {
	perm, err := r.findPermission(ctx, e.StreamID)
	if err != nil {
		return err
	}
	perm.Retired = true
	perm.LastEventID = e.ID
	return r.proj.Permissions().Upsert(ctx, perm)
}

func (r *Router) findRole(ctx context.Context, id string) (*projection.Role, error) {
	role, err := r.proj.Roles().Find(ctx, id)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, &PreconditionError{Missing: "role", Detail: id}
		}
		return nil, err
	}
	return role, nil
}

func (r *Router) findPermission(ctx context.Context, key string) (*projection.Permission, error) {
	perm, err := r.proj.Permissions().Find(ctx, key)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, &PreconditionError{Missing: "permission", Detail: key}
		}
		return nil, err
	}
	return perm, nil
}
