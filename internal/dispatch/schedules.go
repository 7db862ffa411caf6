package dispatch

import (
	"context"
	"errors"
	"time"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
)

func (r *Router) scheduleRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"schedule.set":     r.handleScheduleSet,
		"schedule.cleared": r.handleScheduleCleared,
	}
}

// handleScheduleSet projects a user's access window for one organization.
// The stream id is the user; the organization rides in the payload.
func (r *Router) handleScheduleSet(ctx context.Context, e event.Event) error {
	var p struct {
		OrganizationID string     `json:"organization_id"`
		StartsAt       *time.Time `json:"starts_at"`
		EndsAt         *time.Time `json:"ends_at"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if _, err := r.proj.Users().Find(ctx, e.StreamID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: e.StreamID}
		}
		return err
	}
	if _, err := r.proj.Organizations().Find(ctx, p.OrganizationID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "organization", Detail: p.OrganizationID}
		}
		return err
	}
	return r.proj.Schedules().Upsert(ctx, &projection.Schedule{
		UserID:         e.StreamID,
		OrganizationID: p.OrganizationID,
		StartsAt:       p.StartsAt,
		EndsAt:         p.EndsAt,
		LastEventID:    e.ID,
		UpdatedAt:      e.CreatedAt,
	})
}

func (r *Router) handleScheduleCleared(ctx context.Context, e event.Event) error {
	var p struct {
		OrganizationID string `json:"organization_id"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	return r.proj.Schedules().Remove(ctx, e.StreamID, p.OrganizationID)
}
