package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/ids"
)

const profileColumns = `id, user_id, email, coalesce(full_name, ''), role, user_role, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (auth.Profile, error) {
	var (
		p      auth.Profile
		coarse string
		fine   sql.NullString
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &coarse, &fine, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return auth.Profile{}, err
	}
	p.CoarseRole = auth.CoarseRole(coarse)
	p.FineRole = auth.FineRole(fine.String)
	if !fine.Valid || !p.FineRole.Valid() {
		p.FineRole = p.CoarseRole.Fine()
	}
	p.Status = auth.Status(status)
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoConnection
	}
	row := s.db.QueryRowContext(ctx, `select `+profileColumns+` from user_profiles where user_id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Profile{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Profile{}, wrapErr("get profile", err)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]auth.Profile, error) {
	if s.db == nil {
		return nil, errNoConnection
	}
	rows, err := s.db.QueryContext(ctx, `select `+profileColumns+` from user_profiles order by created_at desc, id desc`)
	if err != nil {
		return nil, wrapErr("list profiles", err)
	}
	defer rows.Close()

	var result []auth.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, wrapErr("list profiles", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list profiles", err)
	}
	return result, nil
}

func (s *Store) EnsureProfile(ctx context.Context, p auth.Profile) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoConnection
	}
	if p.UserID == "" {
		return auth.Profile{}, fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	if !p.FineRole.Valid() {
		p.FineRole = auth.RoleUser
	}
	if p.Status == "" {
		p.Status = auth.StatusActive
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into user_profiles (id, user_id, email, full_name, role, user_role, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (user_id) do nothing
	`, ids.New(), p.UserID, p.Email, nullIfEmpty(p.FullName), string(p.FineRole.Legacy()), string(p.FineRole), string(p.Status)); err != nil {
		return auth.Profile{}, wrapErr("ensure profile", err)
	}
	return s.GetProfile(ctx, p.UserID)
}

func (s *Store) SetProfile(ctx context.Context, userID string, upd auth.ProfileUpdate) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoConnection
	}
	if upd.Empty() {
		return s.GetProfile(ctx, userID)
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.FullName != nil {
		setClauses = append(setClauses, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, nullIfEmpty(*upd.FullName))
		idx++
	}
	if upd.FineRole != nil {
		setClauses = append(setClauses, fmt.Sprintf("user_role = $%d", idx), fmt.Sprintf("role = $%d", idx+1))
		args = append(args, string(*upd.FineRole), string(upd.FineRole.Legacy()))
		idx += 2
	}
	if upd.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*upd.Status))
		idx++
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`update user_profiles set %s where user_id = $%d returning %s`,
		strings.Join(setClauses, ", "), idx, profileColumns)
	args = append(args, userID)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Profile{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Profile{}, wrapErr("update profile", err)
	}
	return p, nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	if s.db == nil {
		return errNoConnection
	}
	res, err := s.db.ExecContext(ctx, `delete from user_profiles where user_id = $1`, userID)
	if err != nil {
		return wrapErr("delete profile", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete profile", err)
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) IsAdminMember(ctx context.Context, userID string) (bool, error) {
	if s.db == nil {
		return false, errNoConnection
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, `select exists (select 1 from admin_users where user_id = $1)`, userID).Scan(&ok); err != nil {
		return false, wrapErr("is admin member", err)
	}
	return ok, nil
}

func (s *Store) ListAdminMembers(ctx context.Context) ([]auth.AdminMembership, error) {
	if s.db == nil {
		return nil, errNoConnection
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, created_by, created_at
		from admin_users
		order by created_at desc, id desc
	`)
	if err != nil {
		return nil, wrapErr("list admin members", err)
	}
	defer rows.Close()

	var result []auth.AdminMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, wrapErr("list admin members", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list admin members", err)
	}
	return result, nil
}

func (s *Store) GrantAdmin(ctx context.Context, target, grantedBy string) (auth.AdminMembership, error) {
	if s.db == nil {
		return auth.AdminMembership{}, errNoConnection
	}
	row := s.db.QueryRowContext(ctx, `
		insert into admin_users (id, user_id, created_by)
		values ($1, $2, $3)
		returning id, user_id, created_by, created_at
	`, ids.New(), target, nullIfEmpty(grantedBy))
	m, err := scanMembership(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.AdminMembership{}, auth.ErrAlreadyMember
		}
		return auth.AdminMembership{}, wrapErr("grant admin", err)
	}
	return m, nil
}

func (s *Store) RevokeAdmin(ctx context.Context, target string) error {
	if s.db == nil {
		return errNoConnection
	}
	res, err := s.db.ExecContext(ctx, `delete from admin_users where user_id = $1`, target)
	if err != nil {
		return wrapErr("revoke admin", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return wrapErr("revoke admin", err)
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) AdminMembersExist(ctx context.Context) (bool, error) {
	if s.db == nil {
		return false, errNoConnection
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select admin_users_exist()`).Scan(&exists); err != nil {
		return false, wrapErr("admin users exist", err)
	}
	return exists, nil
}

func (s *Store) HasAdminPermissions(ctx context.Context, userID string) (bool, error) {
	if s.db == nil {
		return false, errNoConnection
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, `select has_admin_permissions($1)`, userID).Scan(&ok); err != nil {
		return false, wrapErr("has admin permissions", err)
	}
	return ok, nil
}

// CreateFirstAdmin delegates the emptiness check and insert to the
// create_first_admin procedure so no caller can interleave between them.
func (s *Store) CreateFirstAdmin(ctx context.Context, userID string) (auth.AdminMembership, error) {
	if s.db == nil {
		return auth.AdminMembership{}, errNoConnection
	}
	row := s.db.QueryRowContext(ctx, `
		select membership_id, member_user_id, granted_by, granted_at
		from create_first_admin($1, $2)
	`, userID, ids.New())
	m, err := scanMembership(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrAdminsExist, pgErrUniqueViolation:
				return auth.AdminMembership{}, auth.ErrAdminsAlreadyExist
			}
		}
		return auth.AdminMembership{}, wrapErr("create first admin", err)
	}
	return m, nil
}

func scanMembership(row rowScanner) (auth.AdminMembership, error) {
	var (
		m         auth.AdminMembership
		createdBy sql.NullString
	)
	if err := row.Scan(&m.ID, &m.UserID, &createdBy, &m.CreatedAt); err != nil {
		return auth.AdminMembership{}, err
	}
	if createdBy.Valid && createdBy.String != "" {
		v := createdBy.String
		m.CreatedBy = &v
	}
	return m, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
