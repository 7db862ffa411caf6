package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"orgcore.org/internal/audit"
	"orgcore.org/internal/authz"
	"orgcore.org/internal/event"
)

type emitRequest struct {
	StreamID   string          `json:"stream_id"`
	StreamType string          `json:"stream_type"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	Reason     string          `json:"reason"`
}

// writePermission maps a stream type to the permission its commands require.
func writePermission(streamType string) string {
	switch streamType {
	case event.StreamOrganization, event.StreamOrgUnit, event.StreamRelationship:
		return "organization.write"
	case event.StreamRole, event.StreamPermission:
		return "role.write"
	case event.StreamAccessGrant, event.StreamImpersonation:
		return "grant.write"
	case event.StreamUser, event.StreamContact, event.StreamSchedule:
		return "user.write"
	default:
		return "organization.write"
	}
}

func (a *API) emitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := requirePermission(r.Context(), writePermission(req.StreamType)); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	claims, _ := authz.ClaimsFromContext(r.Context())
	meta := event.Metadata{
		ActorID:       claims.UserID,
		Reason:        req.Reason,
		CorrelationID: RequestIDFromContext(r.Context()),
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	id, err := a.emitter.Emit(r.Context(), req.StreamID, req.StreamType, req.EventType, data, meta)
	if err != nil {
		var flagged *event.FlaggedError
		if errors.As(err, &flagged) {
			// Stored durably; projection catches up on retry.
			_ = audit.LogEvent(r.Context(), "event.emit.flagged", map[string]any{
				"event_id": flagged.EventID, "event_type": req.EventType,
			})
			writeJSON(w, http.StatusAccepted, map[string]any{
				"event_id": flagged.EventID,
				"status":   "flagged",
				"error":    flagged.Cause.Error(),
			})
			return
		}
		if errors.Is(err, event.ErrValidation) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, event.ErrVersionConflict) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "emit failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "event.emit", map[string]any{
		"event_id": id, "event_type": req.EventType, "stream_id": req.StreamID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"event_id": id,
		"status":   "processed",
	})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := a.events.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) retryEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := requirePermission(r.Context(), "organization.write"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	err := a.router.Retry(r.Context(), id)
	switch {
	case err == nil:
		_ = audit.LogEvent(r.Context(), "event.retry", map[string]any{"event_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"event_id": id, "status": "processed"})
	case errors.Is(err, event.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "event not found")
	case strings.Contains(err.Error(), "already processed"):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"event_id": id,
			"status":   "flagged",
			"error":    err.Error(),
		})
	}
}

func (a *API) listStream(w http.ResponseWriter, r *http.Request) {
	streamType := chi.URLParam(r, "type")
	streamID := chi.URLParam(r, "id")
	items, err := a.events.ListStream(r.Context(), streamType, streamID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) listPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := a.events.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// watchEvents streams dispatch signals as Server-Sent Events. Delivery is
// at-most-once; a consumer that falls behind loses signals, never blocks
// dispatch.
func (a *API) watchEvents(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := a.hub.Subscribe(16)
	defer cancel()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case sig, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(sig)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
