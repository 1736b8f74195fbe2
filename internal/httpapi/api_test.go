package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundrydesk.io/internal/audit"
	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/bootstrap"
	"laundrydesk.io/internal/events"
	"laundrydesk.io/internal/permission"
	"laundrydesk.io/internal/store/memory"
)

const testSecret = "test-secret"

type testServer struct {
	api      *API
	store    *memory.Store
	recorder *audit.Recorder
	verifier *auth.TokenVerifier
	tokens   map[string]string
}

func newTestServer(t *testing.T, checker auth.PermissionChecker, wait time.Duration) *testServer {
	t.Helper()
	store := memory.New()
	if checker == nil {
		checker = store
	}
	verifier, err := auth.NewTokenVerifier(testSecret)
	require.NoError(t, err)
	recorder := audit.NewRecorder(store)
	svc, err := bootstrap.NewService(store,
		bootstrap.WithAuditor(recorder),
		bootstrap.WithAuditLog(store),
		bootstrap.WithPublisher(events.Discard{}),
	)
	require.NoError(t, err)
	api, err := New(Deps{
		Verifier:       verifier,
		Service:        svc,
		Sessions:       permission.NewRegistry(checker, 64, time.Minute),
		Version:        "test",
		CapabilityWait: wait,
	})
	require.NoError(t, err)
	return &testServer{api: api, store: store, recorder: recorder, verifier: verifier, tokens: map[string]string{}}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	if tok, ok := s.tokens[userID]; ok {
		return tok
	}
	tok, err := s.verifier.GenerateToken(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	s.tokens[userID] = tok
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(authHeader, bearer+s.token(t, userID))
	}
	rr := httptest.NewRecorder()
	RequestID(s.api.Handler()).ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func requireError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["request_id"])
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rr := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])

	rr = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "test", decodeBody(t, rr)["version"])
}

func TestReadyReportsFailingCheck(t *testing.T) {
	s := newTestServer(t, nil, 0)
	s.api.ready = ReadyProbe{Checks: map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}}
	rr := s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "postgres")
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rr := s.do(t, http.MethodGet, "/v1/me", "", nil)
	requireError(t, rr, http.StatusUnauthorized, "unauthenticated")

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(authHeader, "Bearer not-a-token")
	rr = httptest.NewRecorder()
	RequestID(s.api.Handler()).ServeHTTP(rr, req)
	requireError(t, rr, http.StatusUnauthorized, "invalid_token")

	req = httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(authHeader, "Basic abc")
	rr = httptest.NewRecorder()
	RequestID(s.api.Handler()).ServeHTTP(rr, req)
	requireError(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t, nil, 0)
	requireError(t, s.do(t, http.MethodGet, "/v1/nope", "a", nil), http.StatusNotFound, "not_found")
	requireError(t, s.do(t, http.MethodPost, "/v1/profiles", "a", nil), http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestMeEnsuresProfile(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rr := s.do(t, http.MethodGet, "/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var me meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Profile.UserID)
	assert.Equal(t, auth.RoleUser, me.Profile.FineRole)
	assert.True(t, me.Capabilities.Authenticated)
	assert.False(t, me.Capabilities.HasAdminPermissions)

	_, err := s.store.GetProfile(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestBootstrapFlow(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rr := s.do(t, http.MethodGet, "/v1/bootstrap", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no_admins", decodeBody(t, rr)["state"])

	requireError(t, s.do(t, http.MethodGet, "/v1/admins", "a", nil), http.StatusForbidden, "insufficient_permissions")

	rr = s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/v1/admins/a", rr.Header().Get("Location"))

	rr = s.do(t, http.MethodGet, "/v1/bootstrap", "a", nil)
	assert.Equal(t, "admin", decodeBody(t, rr)["state"])

	requireError(t, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil), http.StatusConflict, "already_admin")
	requireError(t, s.do(t, http.MethodPost, "/v1/bootstrap", "b", nil), http.StatusConflict, "admins_already_exist")

	rr = s.do(t, http.MethodGet, "/v1/bootstrap", "b", nil)
	assert.Equal(t, "denied", decodeBody(t, rr)["state"])

	rr = s.do(t, http.MethodGet, "/v1/admins", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	items := decodeBody(t, rr)["items"].([]any)
	assert.Len(t, items, 1)

	rr = s.do(t, http.MethodGet, "/v1/me/capabilities", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var caps permission.Capabilities
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &caps))
	assert.True(t, caps.HasAdminPermissions)
	assert.True(t, caps.CanManageUsers)
}

func TestGrantAndRevokeAdmin(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)

	rr := s.do(t, http.MethodPut, "/v1/admins/b", "a", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	requireError(t, s.do(t, http.MethodPut, "/v1/admins/b", "a", nil), http.StatusConflict, "already_member")

	rr = s.do(t, http.MethodGet, "/v1/admins", "b", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	requireError(t, s.do(t, http.MethodDelete, "/v1/admins/b", "b", nil), http.StatusForbidden, "self_revocation_forbidden")

	rr = s.do(t, http.MethodDelete, "/v1/admins/b", "a", nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	requireError(t, s.do(t, http.MethodDelete, "/v1/admins/b", "a", nil), http.StatusNotFound, "not_found")

	requireError(t, s.do(t, http.MethodGet, "/v1/admins", "b", nil), http.StatusForbidden, "insufficient_permissions")
}

func TestSelfRevocationCheckedBeforeGuard(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)

	requireError(t, s.do(t, http.MethodDelete, "/v1/admins/c", "c", nil), http.StatusForbidden, "self_revocation_forbidden")
	requireError(t, s.do(t, http.MethodDelete, "/v1/admins/a", "c", nil), http.StatusForbidden, "insufficient_permissions")
	requireError(t, s.do(t, http.MethodDelete, "/v1/admins/c", "", nil), http.StatusUnauthorized, "unauthenticated")
}

func TestRepeatedDenialIsStable(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)

	for i := 0; i < 5; i++ {
		requireError(t, s.do(t, http.MethodGet, "/v1/admins", "c", nil), http.StatusForbidden, "insufficient_permissions")
	}

	failing := newTestServer(t, failingChecker{}, 0)
	for i := 0; i < 5; i++ {
		requireError(t, failing.do(t, http.MethodGet, "/v1/admins", "c", nil), http.StatusForbidden, "check_failed")
	}
}

func TestProfileManagement(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/me", "c", nil).Code)

	rr := s.do(t, http.MethodGet, "/v1/profiles", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeBody(t, rr)["items"].([]any), 1)

	rr = s.do(t, http.MethodPatch, "/v1/profiles/c", "a", map[string]any{"role": "manager", "full_name": "  Carol <b>"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var p auth.Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, auth.RoleManager, p.FineRole)
	assert.Equal(t, "Carol b", p.FullName)

	rr = s.do(t, http.MethodGet, "/v1/me/capabilities", "c", nil)
	var caps permission.Capabilities
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &caps))
	assert.True(t, caps.HasAdminPermissions, "manager role grants admin permissions")

	requireError(t, s.do(t, http.MethodPatch, "/v1/profiles/c", "a", map[string]any{"role": "root"}), http.StatusBadRequest, "invalid_input")
	requireError(t, s.do(t, http.MethodPatch, "/v1/profiles/c", "a", map[string]any{"unknown": 1}), http.StatusBadRequest, "invalid_input")
	requireError(t, s.do(t, http.MethodPatch, "/v1/profiles/zed", "a", map[string]any{"status": "inactive"}), http.StatusNotFound, "not_found")

	requireError(t, s.do(t, http.MethodDelete, "/v1/profiles/a", "a", nil), http.StatusBadRequest, "invalid_input")
	rr = s.do(t, http.MethodDelete, "/v1/profiles/c", "a", nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	requireError(t, s.do(t, http.MethodGet, "/v1/profiles/c", "a", nil), http.StatusNotFound, "not_found")
}

func TestAuditLogEndpoint(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPut, "/v1/admins/b", "a", nil).Code)
	s.recorder.Wait()

	rr := s.do(t, http.MethodGet, "/v1/audit?limit=1", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	items := decodeBody(t, rr)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, auth.ActionGrantAdmin, items[0].(map[string]any)["action"])

	requireError(t, s.do(t, http.MethodGet, "/v1/audit?limit=abc", "a", nil), http.StatusBadRequest, "invalid_input")
	requireError(t, s.do(t, http.MethodGet, "/v1/audit", "b2", nil), http.StatusForbidden, "insufficient_permissions")
}

func TestInvitations(t *testing.T) {
	s := newTestServer(t, nil, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/bootstrap", "a", nil).Code)

	rr := s.do(t, http.MethodPost, "/v1/invitations", "a", map[string]any{"email": "New@Example.com", "role": "manager"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "new@example.com", body["email"])

	requireError(t, s.do(t, http.MethodPost, "/v1/invitations", "a", map[string]any{"email": "nope"}), http.StatusBadRequest, "invalid_input")
}

type blockingChecker struct{ release chan struct{} }

func (c blockingChecker) HasAdminPermissions(ctx context.Context, _ string) (bool, error) {
	select {
	case <-c.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func TestGuardRendersLoadingAsRetry(t *testing.T) {
	checker := blockingChecker{release: make(chan struct{})}
	t.Cleanup(func() { close(checker.release) })
	s := newTestServer(t, checker, 10*time.Millisecond)

	rr := s.do(t, http.MethodGet, "/v1/admins", "a", nil)
	requireError(t, rr, http.StatusServiceUnavailable, "capabilities_loading")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	rr = s.do(t, http.MethodGet, "/v1/me/capabilities", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var caps permission.Capabilities
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &caps))
	assert.True(t, caps.Loading)
	assert.False(t, caps.HasAdminPermissions)
}

type failingChecker struct{}

func (failingChecker) HasAdminPermissions(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestGuardFailsClosed(t *testing.T) {
	s := newTestServer(t, failingChecker{}, 0)
	requireError(t, s.do(t, http.MethodGet, "/v1/profiles", "a", nil), http.StatusForbidden, "check_failed")
}

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{auth.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{auth.ErrAlreadyMember, http.StatusConflict, "already_member"},
		{auth.ErrNotFound, http.StatusNotFound, "not_found"},
		{auth.ErrSelfRevocationForbidden, http.StatusForbidden, "self_revocation_forbidden"},
		{auth.ErrAdminsAlreadyExist, http.StatusConflict, "admins_already_exist"},
		{auth.ErrAlreadyAdmin, http.StatusConflict, "already_admin"},
		{auth.ErrStoreUnreachable, http.StatusServiceUnavailable, "store_unreachable"},
		{auth.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(audit.WithRequestID(req.Context(), "rid-1"))
		rr := httptest.NewRecorder()
		handleError(rr, req, tc.err)
		requireError(t, rr, tc.status, tc.code)
	}
}
