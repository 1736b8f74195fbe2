package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/permission"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
}

// withAuth requires a valid bearer token outside the public paths and
// attaches the verified identity to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		id, err := a.verifier.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// capabilities resolves the caller's session capabilities, waiting at most
// capsWait for a pending evaluation.
func (a *API) capabilities(r *http.Request) permission.Capabilities {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return permission.Capabilities{}
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.capsWait)
	defer cancel()
	return a.sessions.Capabilities(ctx, id.SessionID, *id)
}

// guard renders the guard decision for req before calling next.
func (a *API) guard(req permission.Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := permission.Guard(req, a.capabilities(r))
		switch d.State {
		case permission.StateAllowed:
			next(w, r)
		case permission.StateLoading:
			w.Header().Set("Retry-After", a.retryAfter())
			writeError(w, r, http.StatusServiceUnavailable, "capabilities_loading", "permissions are still being evaluated")
		default:
			if d.Reason == permission.ReasonUnauthenticated {
				writeError(w, r, http.StatusUnauthorized, string(d.Reason), "authentication required")
				return
			}
			writeError(w, r, http.StatusForbidden, string(d.Reason), "permission denied")
		}
	}
}

func (a *API) retryAfter() string {
	s := int(a.capsWait.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
