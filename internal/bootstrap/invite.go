package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"laundrydesk.io/internal/auth"
)

// InviteRequest describes a user to invite.
type InviteRequest struct {
	Email    string
	Role     string
	FullName string
}

// InviteResult acknowledges an invitation request.
type InviteResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Email   string        `json:"email"`
	Role    auth.FineRole `json:"role"`
}

// InviteUser validates an invitation and acknowledges it. Nothing is
// delivered and no profile is created.
func (s *Service) InviteUser(ctx context.Context, caller *auth.Identity, req InviteRequest) (InviteResult, error) {
	if caller == nil {
		return InviteResult{}, auth.ErrUnauthenticated
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !auth.ValidEmail(email) {
		return InviteResult{}, fmt.Errorf("%w: invalid email address", auth.ErrInvalidInput)
	}
	role := auth.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := auth.ParseFineRole(req.Role)
		if err != nil {
			return InviteResult{}, err
		}
		role = parsed
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return InviteResult{}, err
	}
	return InviteResult{
		Success: true,
		Message: fmt.Sprintf("invitation for %s acknowledged; delivery is not configured", email),
		Email:   email,
		Role:    role,
	}, nil
}
