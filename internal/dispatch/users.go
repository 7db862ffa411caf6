package dispatch

import (
	"context"
	"errors"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
)

func (r *Router) userRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"user.created":         r.handleUserCreated,
		"user.profile_changed": r.handleUserProfileChanged,
		"user.deactivated":     r.handleUserDeactivated,
		"user.reactivated":     r.handleUserReactivated,
		"user.removed":         r.handleUserRemoved,
	}
}

func (r *Router) handleUserCreated(ctx context.Context, e event.Event) error {
	var p struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	return r.proj.Users().Upsert(ctx, &projection.User{
		ID:          e.StreamID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Active:      true,
		LastEventID: e.ID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.CreatedAt,
	})
}

func (r *Router) handleUserProfileChanged(ctx context.Context, e event.Event) error {
	var p struct {
		Email       *string `json:"email"`
		DisplayName *string `json:"display_name"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	u, err := r.proj.Users().Find(ctx, e.StreamID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: e.StreamID}
		}
		return err
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	u.LastEventID = e.ID
	u.UpdatedAt = e.CreatedAt
	return r.proj.Users().Upsert(ctx, u)
}

func (r *Router) handleUserDeactivated(ctx context.Context, e event.Event) error {
	return r.setUserActive(ctx, e, false)
}

func (r *Router) handleUserReactivated(ctx context.Context, e event.Event) error {
	return r.setUserActive(ctx, e, true)
}

func (r *Router) setUserActive(ctx context.Context, e event.Event, active bool) error {
	u, err := r.proj.Users().Find(ctx, e.StreamID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: e.StreamID}
		}
		return err
	}
	u.Active = active
	u.LastEventID = e.ID
	u.UpdatedAt = e.CreatedAt
	return r.proj.Users().Upsert(ctx, u)
}

func (r *Router) handleUserRemoved(ctx context.Context, e event.Event) error {
	err := r.proj.Users().SoftDelete(ctx, e.StreamID, e.ID, e.CreatedAt)
	if errors.Is(err, projection.ErrNotFound) {
		return &PreconditionError{Missing: "user", Detail: e.StreamID}
	}
	return err
}
