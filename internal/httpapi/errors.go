package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"laundrydesk.io/internal/audit"
	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/obs"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrSelfRevocationForbidden, http.StatusForbidden, "self_revocation_forbidden"},
	{auth.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{auth.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{auth.ErrAdminsAlreadyExist, http.StatusConflict, "admins_already_exist"},
	{auth.ErrAlreadyAdmin, http.StatusConflict, "already_admin"},
	{auth.ErrNotFound, http.StatusNotFound, "not_found"},
	{auth.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{auth.ErrStoreUnreachable, http.StatusServiceUnavailable, "store_unreachable"},
}

// handleError maps domain errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := err.Error()
			if m.status == http.StatusServiceUnavailable {
				msg = "role store unavailable"
				obs.Component("httpapi").WithError(err).
					WithField("request_id", audit.RequestIDFromContext(r.Context())).
					Warn("store unreachable")
			}
			writeError(w, r, m.status, m.code, msg)
			return
		}
	}
	obs.Component("httpapi").WithError(err).
		WithField("request_id", audit.RequestIDFromContext(r.Context())).
		Error("unhandled error")
	writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
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
