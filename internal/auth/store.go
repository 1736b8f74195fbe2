package auth

import "context"

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// PermissionChecker answers the single derived privilege question.
type PermissionChecker interface {
	HasAdminPermissions(ctx context.Context, userID string) (bool, error)
}

// RoleStore persists profiles and admin memberships. It performs no
// authorization; callers decide who may invoke which operation.
// Backend outages surface as errors wrapping ErrStoreUnreachable.
type RoleStore interface {
	PermissionChecker

	GetProfile(ctx context.Context, userID string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	EnsureProfile(ctx context.Context, p Profile) (Profile, error)
	SetProfile(ctx context.Context, userID string, upd ProfileUpdate) (Profile, error)
	DeleteProfile(ctx context.Context, userID string) error

	IsAdminMember(ctx context.Context, userID string) (bool, error)
	ListAdminMembers(ctx context.Context) ([]AdminMembership, error)
	GrantAdmin(ctx context.Context, target, grantedBy string) (AdminMembership, error)
	RevokeAdmin(ctx context.Context, target string) error

	// AdminMembersExist and CreateFirstAdmin are evaluated atomically by the backend.
	AdminMembersExist(ctx context.Context) (bool, error)
	CreateFirstAdmin(ctx context.Context, userID string) (AdminMembership, error)
}

// AuditStore appends immutable audit records.
type AuditStore interface {
	AppendAudit(ctx context.Context, rec *AuditRecord) error
	ListAudit(ctx context.Context, limit int) ([]AuditRecord, error)
}

// NormalizeAuditLimit clamps a requested page size to (0, MaxAuditLimit].
func NormalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		return MaxAuditLimit
	}
	return limit
}
