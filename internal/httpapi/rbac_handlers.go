package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/bootstrap"
	"laundrydesk.io/internal/permission"
)

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

type inviteRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Profiles(r.Context(), caller(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []auth.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Profile(r.Context(), caller(r), mux.Vars(r)["user_id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	target := mux.Vars(r)["user_id"]
	p, err := a.svc.UpdateProfile(r.Context(), caller(r), target, bootstrap.ProfileChanges{
		FullName: req.FullName,
		Role:     req.Role,
		Status:   req.Status,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.sessions.InvalidateUser(p.UserID)
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["user_id"]
	if err := a.svc.DeleteProfile(r.Context(), caller(r), target); err != nil {
		handleError(w, r, err)
		return
	}
	a.sessions.InvalidateUser(target)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Admins(r.Context(), caller(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []auth.AdminMembership{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.GrantAdmin(r.Context(), caller(r), mux.Vars(r)["user_id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.sessions.InvalidateUser(m.UserID)
	w.Header().Set("Location", "/v1/admins/"+m.UserID)
	writeJSON(w, http.StatusCreated, m)
}

// handleRevokeAdmin refuses self-revocation before the admin guard runs, so
// a non-member revoking themselves sees the same answer as an admin would.
func (a *API) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	if id := caller(r); id != nil && strings.TrimSpace(mux.Vars(r)["user_id"]) == id.ID {
		handleError(w, r, auth.ErrSelfRevocationForbidden)
		return
	}
	a.guard(permission.RequireAdmin, a.revokeAdmin)(w, r)
}

func (a *API) revokeAdmin(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["user_id"]
	if err := a.svc.RevokeAdmin(r.Context(), caller(r), target); err != nil {
		handleError(w, r, err)
		return
	}
	a.sessions.InvalidateUser(target)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	res, err := a.svc.InviteUser(r.Context(), caller(r), bootstrap.InviteRequest{
		Email:    req.Email,
		Role:     req.Role,
		FullName: req.FullName,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
