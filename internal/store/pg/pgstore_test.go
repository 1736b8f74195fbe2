package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"laundrydesk.io/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var profileCols = []string{"id", "user_id", "email", "full_name", "role", "user_role", "status", "created_at", "updated_at"}

func TestGetProfileBackfillsFineRole(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from user_profiles where user_id = \\$1").
		WithArgs("legacy").
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("p1", "legacy", "l@example.com", "", "admin", nil, "active", now, now))

	p, err := s.GetProfile(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.FineRole != auth.RoleAdmin || p.CoarseRole != auth.CoarseAdmin {
		t.Fatalf("unexpected roles: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from user_profiles").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	if _, err := s.GetProfile(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetProfileWritesDerivedCoarseRole(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	role := auth.RoleManager
	status := auth.StatusActive

	mock.ExpectQuery("update user_profiles set user_role = \\$1, role = \\$2, status = \\$3, updated_at = now\\(\\) where user_id = \\$4 returning").
		WithArgs("manager", "admin", "active", "u1").
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("p1", "u1", "u1@example.com", "", "admin", "manager", "active", now, now))

	p, err := s.SetProfile(context.Background(), "u1", auth.ProfileUpdate{FineRole: &role, Status: &status})
	if err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	if p.FineRole != auth.RoleManager {
		t.Fatalf("unexpected role %s", p.FineRole)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantAdminConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("insert into admin_users").
		WithArgs(sqlmock.AnyArg(), "u2", sql.NullString{String: "u1", Valid: true}).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	if _, err := s.GrantAdmin(context.Background(), "u2", "u1"); !errors.Is(err, auth.ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestRevokeAdminMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("delete from admin_users where user_id = \\$1").
		WithArgs("u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.RevokeAdmin(context.Background(), "u2"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateFirstAdmin(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from create_first_admin\\(\\$1, \\$2\\)").
		WithArgs("founder", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"membership_id", "member_user_id", "granted_by", "granted_at"}).
			AddRow("m1", "founder", nil, now))

	m, err := s.CreateFirstAdmin(context.Background(), "founder")
	if err != nil {
		t.Fatalf("CreateFirstAdmin: %v", err)
	}
	if m.UserID != "founder" || m.CreatedBy != nil {
		t.Fatalf("unexpected membership: %+v", m)
	}

	mock.ExpectQuery("from create_first_admin").
		WithArgs("late", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrAdminsExist, Message: "admin users already exist"})
	if _, err := s.CreateFirstAdmin(context.Background(), "late"); !errors.Is(err, auth.ErrAdminsAlreadyExist) {
		t.Fatalf("expected ErrAdminsAlreadyExist, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHasAdminPermissionsUnreachable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select has_admin_permissions\\(\\$1\\)").
		WithArgs("u1").
		WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := s.HasAdminPermissions(context.Background(), "u1")
	if !errors.Is(err, auth.ErrStoreUnreachable) {
		t.Fatalf("expected ErrStoreUnreachable, got %v", err)
	}

	var nilStore Store
	if _, err := nilStore.AdminMembersExist(context.Background()); !errors.Is(err, auth.ErrStoreUnreachable) {
		t.Fatalf("expected ErrStoreUnreachable for missing handle, got %v", err)
	}
}

func TestAdminMembersExist(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select admin_users_exist\\(\\)").
		WillReturnRows(sqlmock.NewRows([]string{"admin_users_exist"}).AddRow(true))

	exists, err := s.AdminMembersExist(context.Background())
	if err != nil || !exists {
		t.Fatalf("AdminMembersExist: %v %v", exists, err)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("insert into audit_logs").
		WithArgs(sqlmock.AnyArg(), auth.ActionGrantAdmin, auth.TableAdminUsers,
			sql.NullString{String: "u2", Valid: true}, nil, []byte(`{"user_id":"u2"}`), "u1", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	rec := &auth.AuditRecord{
		Action:    auth.ActionGrantAdmin,
		TableName: auth.TableAdminUsers,
		RecordID:  "u2",
		NewValues: map[string]any{"user_id": "u2"},
		UserID:    "u1",
	}
	if err := s.AppendAudit(context.Background(), rec); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if rec.ID == "" || !rec.CreatedAt.Equal(now) {
		t.Fatalf("record not populated: %+v", rec)
	}

	mock.ExpectQuery("from audit_logs").
		WithArgs(auth.DefaultAuditLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "table_name", "record_id", "old_values", "new_values", "user_id", "trace_id", "created_at"}).
			AddRow(rec.ID, rec.Action, rec.TableName, "u2", nil, []byte(`{"user_id":"u2"}`), "u1", "", now))

	recs, err := s.ListAudit(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(recs) != 1 || recs[0].NewValues["user_id"] != "u2" || recs[0].OldValues != nil {
		t.Fatalf("unexpected audit records: %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
