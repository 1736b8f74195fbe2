package auth

import "errors"

var (
	ErrUnauthenticated         = errors.New("auth: unauthenticated")
	ErrPermissionDenied        = errors.New("auth: permission denied")
	ErrAlreadyMember           = errors.New("auth: already an admin member")
	ErrNotFound                = errors.New("auth: not found")
	ErrSelfRevocationForbidden = errors.New("auth: cannot revoke own admin membership")
	ErrAdminsAlreadyExist      = errors.New("auth: admin users already exist")
	ErrAlreadyAdmin            = errors.New("auth: caller already has admin permissions")
	ErrStoreUnreachable        = errors.New("auth: role store unreachable")
	ErrInvalidInput            = errors.New("auth: invalid input")
	ErrInvalidToken            = errors.New("auth: invalid token")
)
