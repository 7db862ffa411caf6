package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orgcore.org/internal/audit"
	"orgcore.org/internal/authz"
	"orgcore.org/internal/ids"
	"orgcore.org/internal/scope"
	"orgcore.org/internal/session"
)

type tokenRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

// issueToken assembles claims from the projections, caches them under a new
// session id and signs a JWT. Blocked claims still get a token: a blocked
// session authenticates but authorizes nothing, so downstream denials carry
// the block reason instead of a generic 401.
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := a.engine.BuildClaims(r.Context(), req.UserID, req.OrganizationID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user or organization not found")
			return
		}
		if errors.Is(err, authz.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "claims assembly failed")
		return
	}

	sessionID := ids.New()
	claims.SessionID = sessionID
	if a.sessions != nil {
		if err := a.sessions.Put(r.Context(), sessionID, claims, a.sessionTTL); err != nil {
			writeError(w, r, http.StatusInternalServerError, "session store failed")
			return
		}
	}

	token, err := authz.GenerateToken(claims, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token signing failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "session.issued", map[string]any{
		"session_id": sessionID, "user_id": req.UserID, "blocked": claims.Blocked,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"session_id": sessionID,
		"claims":     claims,
	})
}

// revokeSession drops the session's cache entry so its token stops
// authenticating before the JWT expires. Holders may end their own session;
// ending someone else's requires grant.write.
func (a *API) revokeSession(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	claims, ok := authz.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	sessionID := chi.URLParam(r, "id")
	if sessionID != claims.SessionID {
		if err := requirePermission(r.Context(), "grant.write"); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
	}

	if _, err := a.sessions.Get(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if err := a.sessions.Drop(r.Context(), sessionID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session revoke failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "session.revoked", map[string]any{"session_id": sessionID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (a *API) currentClaims(w http.ResponseWriter, r *http.Request) {
	claims, ok := authz.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (a *API) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := requirePermission(r.Context(), "user.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	set, err := a.engine.EffectiveSet(r.Context(), userID, time.Now().UTC())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "effective set failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": set})
}

type delegationRequest struct {
	PermissionKeys []string `json:"permission_keys"`
	TargetScope    string   `json:"target_scope"`
}

// checkDelegation dry-runs the subset-only rule for the caller: may they hand
// out these permissions at the target scope. The response always carries the
// complete violation list, never just the first offender.
func (a *API) checkDelegation(w http.ResponseWriter, r *http.Request) {
	claims, ok := authz.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req delegationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.PermissionKeys) == 0 {
		writeError(w, r, http.StatusBadRequest, "permission_keys is required")
		return
	}
	target, err := scope.Parse(req.TargetScope)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	violations := authz.CheckDelegation(claims.Permissions, req.PermissionKeys, target)
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":    violations.OK(),
		"violations": violations,
	})
}
