package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Stream types routed by the dispatcher. Admin streams carry signaling events
// only and never touch projections.
const (
	StreamUser          = "user"
	StreamOrganization  = "organization"
	StreamOrgUnit       = "organization_unit"
	StreamRole          = "role"
	StreamPermission    = "permission"
	StreamSchedule      = "schedule"
	StreamContact       = "contact"
	StreamAccessGrant   = "access_grant"
	StreamImpersonation = "impersonation"
	StreamRelationship  = "relationship"
	StreamAdmin         = "admin"
)

// Metadata travels with every event. ActorID is mandatory; Reason is the
// operator-facing justification recorded for mutating operations. The
// correlation/session/trace ids are stored verbatim for external observability
// tooling and never interpreted here.
type Metadata struct {
	ActorID       string `json:"actor_id"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

// Event is one immutable entry of a stream. StreamVersion is assigned by the
// store at append time and strictly increases per (StreamType, StreamID).
type Event struct {
	ID              string          `json:"id"`
	StreamID        string          `json:"stream_id"`
	StreamType      string          `json:"stream_type"`
	StreamVersion   int64           `json:"stream_version"`
	EventType       string          `json:"event_type"`
	Data            json.RawMessage `json:"event_data"`
	Metadata        Metadata        `json:"event_metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ProcessingError string          `json:"processing_error,omitempty"`
	RetryCount      int             `json:"retry_count"`
}

// Pending reports whether the event still awaits a successful dispatch.
func (e Event) Pending() bool { return e.ProcessedAt == nil }

// Family returns the part of the event type before the first dot.
func (e Event) Family() string {
	if i := strings.IndexByte(e.EventType, '.'); i >= 0 {
		return e.EventType[:i]
	}
	return e.EventType
}

// IsLink reports whether the event type carries the relationship suffix.
func (e Event) IsLink() bool {
	return strings.HasSuffix(e.EventType, ".linked") || strings.HasSuffix(e.EventType, ".unlinked")
}
