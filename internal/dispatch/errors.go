package dispatch

import "fmt"

// UnrecognizedRouteError marks an event the router cannot place: an unknown
// stream type or an unknown event type inside a known stream. Both are
// configuration bugs and always fatal for the event — it stays durably stored
// and unprocessed, never silently skipped.
type UnrecognizedRouteError struct {
	StreamType string
	EventType  string
}

func (e *UnrecognizedRouteError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("dispatch: unrecognized stream type %q", e.StreamType)
	}
	return fmt.Sprintf("dispatch: unrecognized event type %q in stream %q", e.EventType, e.StreamType)
}

// PreconditionError marks a handler that found referenced data missing, e.g.
// a unit arriving before its parent organization was projected. The event
// stays unprocessed for replay once the dependency resolves.
type PreconditionError struct {
	Missing string
	Detail  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("dispatch: precondition failed: %s (%s)", e.Missing, e.Detail)
}
