package dispatch

import (
	"context"
	"errors"
	"time"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

func (r *Router) grantRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"access_grant.created": r.handleGrantCreated,
		"access_grant.changed": r.handleGrantChanged,
		"access_grant.revoked": r.handleGrantRevoked,
	}
}

func (r *Router) impersonationRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"impersonation.started": r.handleImpersonationStarted,
		"impersonation.ended":   r.handleImpersonationEnded,
	}
}

func (r *Router) handleGrantCreated(ctx context.Context, e event.Event) error {
	var p struct {
		UserID         string     `json:"user_id"`
		RoleID         string     `json:"role_id"`
		OrganizationID string     `json:"organization_id"`
		Scope          string     `json:"scope"`
		ValidFrom      *time.Time `json:"valid_from"`
		ValidUntil     *time.Time `json:"valid_until"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	sc, err := scope.Parse(p.Scope)
	if err != nil {
		return err
	}
	if _, err := r.proj.Users().Find(ctx, p.UserID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: p.UserID}
		}
		return err
	}
	if _, err := r.findRole(ctx, p.RoleID); err != nil {
		return err
	}
	if _, err := r.proj.Organizations().Find(ctx, p.OrganizationID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "organization", Detail: p.OrganizationID}
		}
		return err
	}
	return r.proj.Grants().Upsert(ctx, &projection.Grant{
		ID:             e.StreamID,
		UserID:         p.UserID,
		RoleID:         p.RoleID,
		OrganizationID: p.OrganizationID,
		Scope:          sc,
		ValidFrom:      p.ValidFrom,
		ValidUntil:     p.ValidUntil,
		LastEventID:    e.ID,
		CreatedAt:      e.CreatedAt,
	})
}

func (r *Router) handleGrantChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Scope      *string    `json:"scope"`
		ValidFrom  *time.Time `json:"valid_from"`
		ValidUntil *time.Time `json:"valid_until"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	g, err := r.proj.Grants().Find(ctx, e.StreamID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "access_grant", Detail: e.StreamID}
		}
		return err
	}
	if p.Scope != nil {
		sc, err := scope.Parse(*p.Scope)
		if err != nil {
			return err
		}
		g.Scope = sc
	}
	if p.ValidFrom != nil {
		g.ValidFrom = p.ValidFrom
	}
	if p.ValidUntil != nil {
		g.ValidUntil = p.ValidUntil
	}
	g.LastEventID = e.ID
	return r.proj.Grants().Upsert(ctx, g)
}

func (r *Router) handleGrantRevoked(ctx context.Context, e event.Event) error {
	// Hard delete: the row disappears on revocation, re-delivery is a no-op.
	return r.proj.Grants().Remove(ctx, e.StreamID)
}

func (r *Router) handleImpersonationStarted(ctx context.Context, e event.Event) error {
	var p struct {
		ActorID        string `json:"actor_id"`
		TargetUserID   string `json:"target_user_id"`
		OrganizationID string `json:"organization_id"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if _, err := r.proj.Users().Find(ctx, p.TargetUserID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: p.TargetUserID}
		}
		return err
	}
	return r.proj.Impersonations().Upsert(ctx, &projection.Impersonation{
		ID:             e.StreamID,
		ActorID:        p.ActorID,
		TargetUserID:   p.TargetUserID,
		OrganizationID: p.OrganizationID,
		StartedAt:      e.CreatedAt,
		LastEventID:    e.ID,
	})
}

func (r *Router) handleImpersonationEnded(ctx context.Context, e event.Event) error {
	return r.proj.Impersonations().Remove(ctx, e.StreamID)
}
