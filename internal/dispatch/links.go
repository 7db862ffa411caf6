package dispatch

import (
	"context"
	"fmt"
	"strings"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
)

// applyLink handles relationship/junction events: any event type ending in
// .linked or .unlinked that is not carved out to an aggregate sub-router.
// The junction kind defaults to the event type's family when the payload
// omits it, so "membership.linked" records a "membership" link.
func (r *Router) applyLink(ctx context.Context, e event.Event) error {
	var p struct {
		Kind    string `json:"kind"`
		LeftID  string `json:"left_id"`
		RightID string `json:"right_id"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if p.Kind == "" {
		p.Kind = e.Family()
	}
	if p.LeftID == "" || p.RightID == "" {
		return fmt.Errorf("relationship %s: left_id and right_id are required", e.EventType)
	}

	if strings.HasSuffix(e.EventType, ".unlinked") {
		return r.proj.Links().Remove(ctx, p.Kind, p.LeftID, p.RightID)
	}
	return r.proj.Links().Add(ctx, &projection.Link{
		Kind:        p.Kind,
		LeftID:      p.LeftID,
		RightID:     p.RightID,
		LastEventID: e.ID,
		CreatedAt:   e.CreatedAt,
	})
}
