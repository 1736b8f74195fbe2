package auth

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the authenticated caller as asserted by the identity provider.
// SessionID identifies the sign-in session the token belongs to.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"-"`
}

// FineRole is the authoritative per-profile role.
type FineRole string

const (
	RoleOwner   FineRole = "owner"
	RoleManager FineRole = "manager"
	RoleAdmin   FineRole = "admin"
	RoleUser    FineRole = "user"
)

// ParseFineRole normalises and validates a role name.
func ParseFineRole(raw string) (FineRole, error) {
	role := FineRole(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

func (r FineRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Privileged reports whether the role alone grants admin permissions
// to an active profile.
func (r FineRole) Privileged() bool {
	return r == RoleOwner || r == RoleManager || r == RoleAdmin
}

// Legacy derives the deprecated coarse role written alongside every profile.
func (r FineRole) Legacy() CoarseRole {
	if r.Privileged() {
		return CoarseAdmin
	}
	return CoarseUser
}

// CoarseRole is the pre-migration two-value role. It is never written
// independently of FineRole.
type CoarseRole string

const (
	CoarseUser  CoarseRole = "user"
	CoarseAdmin CoarseRole = "admin"
)

// Fine back-fills a fine role for rows that predate the fine role column.
func (c CoarseRole) Fine() FineRole {
	if c == CoarseAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Status is the profile activation state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus normalises and validates a profile status.
func ParseStatus(raw string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(raw)))
	if st != StatusActive && st != StatusInactive {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
	return st, nil
}

// Profile holds per-user descriptive data. At most one exists per UserID.
type Profile struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name,omitempty"`
	CoarseRole CoarseRole `json:"role"`
	FineRole   FineRole   `json:"user_role"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Privileged reports whether the profile by itself confers admin permissions.
func (p Profile) Privileged() bool {
	return p.Status == StatusActive && p.FineRole.Privileged()
}

// Snapshot returns the audited subset of the profile.
func (p Profile) Snapshot() map[string]any {
	return map[string]any{
		"user_role": string(p.FineRole),
		"role":      string(p.CoarseRole),
		"status":    string(p.Status),
		"full_name": p.FullName,
	}
}

// ProfileUpdate carries optional profile changes. Nil fields are left untouched.
type ProfileUpdate struct {
	FullName *string
	FineRole *FineRole
	Status   *Status
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.FineRole == nil && u.Status == nil
}

// Apply returns p with the update applied, keeping CoarseRole derived.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.FineRole != nil {
		p.FineRole = *u.FineRole
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	p.CoarseRole = p.FineRole.Legacy()
	return p
}

// AdminMembership marks a user as holding the admin privilege bit.
// CreatedBy is nil for the self-granted bootstrap membership.
type AdminMembership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRecord is an append-only entry describing a privileged mutation.
type AuditRecord struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id,omitempty"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	UserID    string         `json:"user_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
