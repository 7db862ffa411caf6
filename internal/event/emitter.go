package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"orgcore.org/internal/ids"
	"orgcore.org/internal/obs"
)

// MinReasonLen is the minimum length of the justification recorded with a
// mutating emission.
const MinReasonLen = 10

// Dispatcher applies a freshly appended event to the projections.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Emitter validates structural preconditions, appends the event and runs
// dispatch in the same unit of work. The caller always ends up with a durable
// event: either processed, or flagged with a recorded error for replay.
type Emitter struct {
	store      Store
	dispatcher Dispatcher
	now        func() time.Time
}

// NewEmitter wires the store and dispatcher together.
func NewEmitter(store Store, dispatcher Dispatcher) *Emitter {
	return &Emitter{store: store, dispatcher: dispatcher, now: time.Now}
}

// Emit appends one event and dispatches it. On handler failure the event is
// kept with the error recorded and a *FlaggedError is returned alongside the
// event id, so command-layer callers can distinguish "applied" from "stored,
// projection catching up".
func (em *Emitter) Emit(ctx context.Context, streamID, streamType, eventType string, data any, meta Metadata) (string, error) {
	if err := validate(streamID, streamType, eventType, meta); err != nil {
		return "", err
	}

	payload := json.RawMessage(`{}`)
	if data != nil {
		var err error
		payload, err = json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("%w: encode payload: %v", ErrValidation, err)
		}
	}

	if meta.TraceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			meta.TraceID = sc.TraceID().String()
		}
	}

	e := &Event{
		ID:         ids.New(),
		StreamID:   strings.TrimSpace(streamID),
		StreamType: streamType,
		EventType:  eventType,
		Data:       payload,
		Metadata:   meta,
		CreatedAt:  em.now().UTC(),
	}
	if err := em.store.Append(ctx, e); err != nil {
		return "", fmt.Errorf("append %s: %w", eventType, err)
	}
	obs.EventsEmitted.WithLabelValues(streamType).Inc()

	if err := em.dispatcher.Dispatch(ctx, *e); err != nil {
		// The append stands; only the processed marker is withheld. The
		// dispatcher has already recorded the error on the event row.
		return e.ID, &FlaggedError{EventID: e.ID, Cause: err}
	}
	return e.ID, nil
}

func validate(streamID, streamType, eventType string, meta Metadata) error {
	if strings.TrimSpace(streamID) == "" {
		return fmt.Errorf("%w: stream_id is required", ErrValidation)
	}
	if streamType == "" {
		return fmt.Errorf("%w: stream_type is required", ErrValidation)
	}
	if !validEventType(eventType) {
		return fmt.Errorf("%w: event_type %q must be a dotted name", ErrValidation, eventType)
	}
	if strings.TrimSpace(meta.ActorID) == "" {
		return fmt.Errorf("%w: metadata actor_id is required", ErrValidation)
	}
	// Admin streams are pure signals; everything else mutates state and must
	// carry a justification.
	if streamType != StreamAdmin && len(strings.TrimSpace(meta.Reason)) < MinReasonLen {
		return fmt.Errorf("%w: reason must be at least %d characters", ErrValidation, MinReasonLen)
	}
	return nil
}

func validEventType(t string) bool {
	if t == "" || strings.ContainsAny(t, " \t\n") {
		return false
	}
	i := strings.IndexByte(t, '.')
	return i > 0 && i < len(t)-1
}
