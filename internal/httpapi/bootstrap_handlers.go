package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/permission"
)

type meResponse struct {
	Profile      auth.Profile            `json:"profile"`
	Capabilities permission.Capabilities `json:"capabilities"`
}

func caller(r *http.Request) *auth.Identity {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return id
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.EnsureProfile(r.Context(), caller(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Profile: p, Capabilities: a.capabilities(r)})
}

// handleMyCapabilities reports the snapshot as is, including while loading.
func (a *API) handleMyCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.capabilities(r))
}

func (a *API) handleBootstrapState(w http.ResponseWriter, r *http.Request) {
	state, err := a.svc.State(r.Context(), caller(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state.String()})
}

func (a *API) handleBecomeFirstAdmin(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	m, err := a.svc.BecomeFirstAdmin(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.sessions.InvalidateUser(id.ID)
	w.Header().Set("Location", "/v1/admins/"+m.UserID)
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_input", "limit must be a positive integer")
			return
		}
		limit = v
	}
	recs, err := a.svc.AuditLog(r.Context(), caller(r), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if recs == nil {
		recs = []auth.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}
