package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orgcore.org/internal/projection"
)

func (a *API) handleLookupError(w http.ResponseWriter, r *http.Request, err error, what string) {
	if errors.Is(err, projection.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, r, http.StatusInternalServerError, "lookup failed")
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "organization.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	orgs, err := a.proj.Organizations().List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orgs})
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "organization.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	org, err := a.proj.Organizations().Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleLookupError(w, r, err, "organization")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) listUnits(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "organization.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	units, err := a.proj.Units().ListByOrg(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": units})
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "organization.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	roles, err := a.proj.Roles().ListByOrg(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.proj.Permissions().List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "user.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	u, err := a.proj.Users().Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleLookupError(w, r, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// getContacts assembles the full contact card: address, phones, emails and
// notification preferences.
func (a *API) getContacts(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), "user.read"); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}
	userID := chi.URLParam(r, "id")
	contacts := a.proj.Contacts()

	card := map[string]any{"user_id": userID}
	if addr, err := contacts.FindAddress(r.Context(), userID); err == nil {
		card["address"] = addr
	} else if !errors.Is(err, projection.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	phones, err := contacts.ListPhones(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	emails, err := contacts.ListEmails(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	prefs, err := contacts.ListPrefs(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	card["phones"] = phones
	card["emails"] = emails
	card["notification_prefs"] = prefs
	writeJSON(w, http.StatusOK, card)
}
