package auth

// Audit actions recorded for privileged mutations.
const (
	ActionBootstrap     = "admin.bootstrap"
	ActionGrantAdmin    = "admin.grant"
	ActionRevokeAdmin   = "admin.revoke"
	ActionProfileUpdate = "profile.update"
	ActionProfileDelete = "profile.delete"
)

// Audited tables.
const (
	TableAdminUsers   = "admin_users"
	TableUserProfiles = "user_profiles"
)
