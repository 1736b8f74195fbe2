// Package httpapi exposes the permission core over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/bootstrap"
	"laundrydesk.io/internal/obs"
	"laundrydesk.io/internal/permission"
)

const (
	serviceName = "laundrydesk-api"

	// DefaultCapabilityWait bounds how long a guarded request waits for a
	// pending capability evaluation before answering 503.
	DefaultCapabilityWait = 2 * time.Second
)

// ReadyProbe runs named dependency checks for /readyz.
type ReadyProbe struct {
	Checks map[string]func(context.Context) error
}

// Check runs every check and returns the first failure in name order.
func (rp ReadyProbe) Check(ctx context.Context) error {
	names := make([]string, 0, len(rp.Checks))
	for name := range rp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rp.Checks[name](ctx); err != nil {
			return errors.New(name + ": " + err.Error())
		}
	}
	return nil
}

// Deps wires the API to the permission core.
type Deps struct {
	Verifier *auth.TokenVerifier
	Service  *bootstrap.Service
	Sessions *permission.Registry
	Ready    ReadyProbe
	Version  string

	// CapabilityWait defaults to DefaultCapabilityWait.
	CapabilityWait time.Duration
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	verifier *auth.TokenVerifier
	svc      *bootstrap.Service
	sessions *permission.Registry
	ready    ReadyProbe
	version  string
	capsWait time.Duration
}

func New(d Deps) (*API, error) {
	switch {
	case d.Verifier == nil:
		return nil, errors.New("httpapi: token verifier is required")
	case d.Service == nil:
		return nil, errors.New("httpapi: bootstrap service is required")
	case d.Sessions == nil:
		return nil, errors.New("httpapi: session registry is required")
	}
	a := &API{
		router:   mux.NewRouter(),
		verifier: d.Verifier,
		svc:      d.Service,
		sessions: d.Sessions,
		ready:    d.Ready,
		version:  d.Version,
		capsWait: d.CapabilityWait,
	}
	if a.capsWait <= 0 {
		a.capsWait = DefaultCapabilityWait
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.Use(a.withAuth)

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/me", a.guard(permission.RequireAuthenticated, a.handleMe)).Methods(http.MethodGet)
	r.HandleFunc("/v1/me/capabilities", a.handleMyCapabilities).Methods(http.MethodGet)

	r.HandleFunc("/v1/bootstrap", a.handleBootstrapState).Methods(http.MethodGet)
	r.HandleFunc("/v1/bootstrap", a.handleBecomeFirstAdmin).Methods(http.MethodPost)

	admin := permission.RequireAdmin
	r.HandleFunc("/v1/profiles", a.guard(admin, a.handleListProfiles)).Methods(http.MethodGet)
	r.HandleFunc("/v1/profiles/{user_id}", a.guard(admin, a.handleGetProfile)).Methods(http.MethodGet)
	r.HandleFunc("/v1/profiles/{user_id}", a.guard(admin, a.handleUpdateProfile)).Methods(http.MethodPatch)
	r.HandleFunc("/v1/profiles/{user_id}", a.guard(admin, a.handleDeleteProfile)).Methods(http.MethodDelete)

	r.HandleFunc("/v1/admins", a.guard(admin, a.handleListAdmins)).Methods(http.MethodGet)
	r.HandleFunc("/v1/admins/{user_id}", a.guard(admin, a.handleGrantAdmin)).Methods(http.MethodPut)
	r.HandleFunc("/v1/admins/{user_id}", a.handleRevokeAdmin).Methods(http.MethodDelete)

	r.HandleFunc("/v1/invitations", a.guard(permission.RequireManageUsers, a.handleInvite)).Methods(http.MethodPost)
	r.HandleFunc("/v1/audit", a.guard(admin, a.handleAuditLog)).Methods(http.MethodGet)
}

// Handler returns the instrumented router.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     serviceName,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"sessions": a.sessions.Len(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
