package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orgcore.org/internal/event"
	"orgcore.org/internal/obs"
	"orgcore.org/internal/projection"
)

// HandlerFunc applies one event to the projections. Handlers are idempotent:
// re-applying the same event yields the same projection state.
type HandlerFunc func(ctx context.Context, e event.Event) error

// Notifier receives fire-and-forget signals for selected event types. The
// router never waits on it.
type Notifier interface {
	Publish(e event.Event)
}

// linkCarveOuts are event types that carry the .linked/.unlinked suffix but
// semantically belong to an aggregate sub-router. This list is intentional
// and exact; routing must never be inferred from the suffix alone for these.
var linkCarveOuts = map[string]struct{}{
	"organization.domain.linked":   {},
	"organization.domain.unlinked": {},
}

// notifyTypes publish a signal on the side-channel for the external workflow
// engine (DNS/email provisioning). At most once, never awaited.
var notifyTypes = map[string]struct{}{
	"organization.created":       {},
	"organization.domain.linked": {},
	"contact.email_set":          {},
}

// Router classifies freshly appended events and forwards each to exactly one
// handler. It runs synchronously inside the emission unit of work; failures
// are caught here, recorded on the event row and never abort the append.
type Router struct {
	events  event.Store
	proj    projection.Store
	cascade *projection.Cascader
	notify  Notifier
	now     func() time.Time

	routes map[string]map[string]HandlerFunc
}

// Option configures the Router.
type Option func(*Router)

// WithNotifier attaches the side-channel consumer.
func WithNotifier(n Notifier) Option {
	return func(r *Router) { r.notify = n }
}

// NewRouter builds the router with the full static handler registry.
func NewRouter(events event.Store, proj projection.Store, opts ...Option) *Router {
	r := &Router{
		events:  events,
		proj:    proj,
		cascade: projection.NewCascader(proj),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.routes = map[string]map[string]HandlerFunc{
		event.StreamUser:          r.userRoutes(),
		event.StreamOrganization:  r.organizationRoutes(),
		event.StreamOrgUnit:       r.unitRoutes(),
		event.StreamRole:          r.roleRoutes(),
		event.StreamPermission:    r.permissionRoutes(),
		event.StreamSchedule:      r.scheduleRoutes(),
		event.StreamContact:       r.contactRoutes(),
		event.StreamAccessGrant:   r.grantRoutes(),
		event.StreamImpersonation: r.impersonationRoutes(),
	}
	return r
}

var _ event.Dispatcher = (*Router)(nil)

// Dispatch routes one unprocessed event. On handler failure the error is
// recorded on the event row and returned; the event itself stays durable.
func (r *Router) Dispatch(ctx context.Context, e event.Event) error {
	if err := r.apply(ctx, e); err != nil {
		if rerr := r.events.RecordError(ctx, e.ID, err.Error()); rerr != nil {
			obs.LogJSON(map[string]any{
				"level": "error", "msg": "record dispatch error failed",
				"event_id": e.ID, "err": rerr.Error(),
			})
		}
		obs.DispatchFailures.WithLabelValues(e.StreamType, failureReason(err)).Inc()
		obs.LogJSON(map[string]any{
			"level": "error", "msg": "event dispatch failed",
			"event_id": e.ID, "event_type": e.EventType, "stream_type": e.StreamType,
			"err": err.Error(),
		})
		return err
	}
	if err := r.events.MarkProcessed(ctx, e.ID, r.now()); err != nil {
		return fmt.Errorf("mark processed %s: %w", e.ID, err)
	}
	obs.EventsProcessed.WithLabelValues(e.StreamType).Inc()
	if r.notify != nil {
		if _, ok := notifyTypes[e.EventType]; ok {
			r.notify.Publish(e)
		}
	}
	return nil
}

func (r *Router) apply(ctx context.Context, e event.Event) error {
	// Administrative streams are pure signals and never touch projections.
	if e.StreamType == event.StreamAdmin {
		return nil
	}

	if _, carved := linkCarveOuts[e.EventType]; e.IsLink() && !carved {
		return r.applyLink(ctx, e)
	}

	sub, ok := r.routes[e.StreamType]
	if !ok {
		return &UnrecognizedRouteError{StreamType: e.StreamType}
	}
	h, ok := sub[e.EventType]
	if !ok {
		return &UnrecognizedRouteError{StreamType: e.StreamType, EventType: e.EventType}
	}
	return h(ctx, e)
}

// Retry is the operator path: clear the recorded error and run dispatch again.
// There is no automatic backoff loop; replay is always an explicit action.
func (r *Router) Retry(ctx context.Context, eventID string) error {
	e, err := r.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if !e.Pending() {
		return fmt.Errorf("dispatch: event %s already processed", eventID)
	}
	if err := r.events.ClearError(ctx, eventID); err != nil {
		return err
	}
	e.ProcessingError = ""
	return r.Dispatch(ctx, e)
}

// CheckRoutes verifies the registry is complete and well formed: every
// non-link stream type has a sub-router, every registered event type belongs
// to its stream's family, and every carve-out is actually registered. Run at
// startup and in tests so a missing handler is caught before deployment.
func (r *Router) CheckRoutes() error {
	expected := []string{
		event.StreamUser, event.StreamOrganization, event.StreamOrgUnit,
		event.StreamRole, event.StreamPermission, event.StreamSchedule,
		event.StreamContact, event.StreamAccessGrant, event.StreamImpersonation,
	}
	for _, st := range expected {
		sub, ok := r.routes[st]
		if !ok || len(sub) == 0 {
			return fmt.Errorf("dispatch: stream type %q has no sub-router", st)
		}
		for et, h := range sub {
			if h == nil {
				return fmt.Errorf("dispatch: nil handler for %q", et)
			}
			if !strings.HasPrefix(et, familyPrefix(st)) {
				return fmt.Errorf("dispatch: event type %q registered under stream %q", et, st)
			}
		}
	}
	for et := range linkCarveOuts {
		found := false
		for _, sub := range r.routes {
			if _, ok := sub[et]; ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("dispatch: carve-out %q has no handler", et)
		}
	}
	return nil
}

func familyPrefix(streamType string) string {
	return streamType + "."
}

func failureReason(err error) string {
	var route *UnrecognizedRouteError
	var pre *PreconditionError
	switch {
	case errors.As(err, &route):
		return "unrecognized_route"
	case errors.As(err, &pre):
		return "precondition"
	default:
		return "handler"
	}
}
