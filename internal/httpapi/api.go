package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orgcore.org/internal/authz"
	"orgcore.org/internal/dispatch"
	"orgcore.org/internal/event"
	"orgcore.org/internal/notify"
	"orgcore.org/internal/obs"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/session"
)

// ReadyProbe checks backing-store readiness (e.g. ping the database).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer serves.
type Deps struct {
	Emitter    *event.Emitter
	Events     event.Store
	Router     *dispatch.Router
	Projection projection.Store
	Engine     *authz.Engine
	Hub        *notify.Hub
	Sessions   session.Cache
	Ready      ReadyProbe
	Version    string
	SessionTTL time.Duration

	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux        *chi.Mux
	emitter    *event.Emitter
	events     event.Store
	router     *dispatch.Router
	proj       projection.Store
	engine     *authz.Engine
	hub        *notify.Hub
	sessions   session.Cache
	readyProbe ReadyProbe
	version    string
	sessionTTL time.Duration
}

func New(d Deps) *API {
	a := &API{
		mux:        chi.NewRouter(),
		emitter:    d.Emitter,
		events:     d.Events,
		router:     d.Router,
		proj:       d.Projection,
		engine:     d.Engine,
		hub:        d.Hub,
		sessions:   d.Sessions,
		readyProbe: d.Ready,
		version:    d.Version,
		sessionTTL: d.SessionTTL,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 12 * time.Hour
	}

	a.mux.Use(RequestID)
	a.mux.Use(Logging)
	a.mux.Use(SecurityHeaders)
	if d.RatePerSec > 0 {
		a.mux.Use(func(next http.Handler) http.Handler {
			return RateLimit(next, d.RateBurst, d.RatePerSec)
		})
	}
	if d.MaxBodyBytes > 0 {
		a.mux.Use(func(next http.Handler) http.Handler {
			return MaxBodyBytes(next, d.MaxBodyBytes)
		})
	}
	a.mux.Use(a.withAuth)

	a.mux.Get("/healthz", a.Healthz)
	a.mux.Get("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Post("/auth/token", a.issueToken)

		r.Post("/events", a.emitEvent)
		r.Get("/events/pending", a.listPending)
		r.Get("/events/{id}", a.getEvent)
		r.Post("/events/{id}/retry", a.retryEvent)
		r.Get("/events/watch", a.watchEvents)
		r.Get("/streams/{type}/{id}", a.listStream)

		r.Get("/claims", a.currentClaims)
		r.Delete("/sessions/{id}", a.revokeSession)
		r.Get("/users/{id}/permissions", a.effectivePermissions)
		r.Post("/delegations/check", a.checkDelegation)

		r.Get("/organizations", a.listOrganizations)
		r.Get("/organizations/{id}", a.getOrganization)
		r.Get("/organizations/{id}/units", a.listUnits)
		r.Get("/organizations/{id}/roles", a.listRoles)
		r.Get("/permissions", a.listPermissions)
		r.Get("/users/{id}", a.getUser)
		r.Get("/users/{id}/contacts", a.getContacts)
	})

	return a
}

// Handler wraps the router with metrics instrumentation.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
