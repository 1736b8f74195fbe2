package bootstrap

import (
	"context"
	"fmt"

	"laundrydesk.io/internal/audit"
	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/obs"
)

// ProfileChanges is an unvalidated profile edit as submitted by a client.
type ProfileChanges struct {
	FullName *string
	Role     *string
	Status   *string
}

func (c ProfileChanges) validate() (auth.ProfileUpdate, error) {
	var upd auth.ProfileUpdate
	if c.FullName != nil {
		name := auth.SanitizeText(*c.FullName)
		upd.FullName = &name
	}
	if c.Role != nil {
		role, err := auth.ParseFineRole(*c.Role)
		if err != nil {
			return auth.ProfileUpdate{}, err
		}
		upd.FineRole = &role
	}
	if c.Status != nil {
		status, err := auth.ParseStatus(*c.Status)
		if err != nil {
			return auth.ProfileUpdate{}, err
		}
		upd.Status = &status
	}
	if upd.Empty() {
		return auth.ProfileUpdate{}, fmt.Errorf("%w: no changes supplied", auth.ErrInvalidInput)
	}
	return upd, nil
}

// EnsureProfile creates the caller's profile on first sign-in.
func (s *Service) EnsureProfile(ctx context.Context, caller *auth.Identity) (auth.Profile, error) {
	if caller == nil {
		return auth.Profile{}, auth.ErrUnauthenticated
	}
	email := ""
	if auth.ValidEmail(caller.Email) {
		email = caller.Email
	}
	p, err := s.store.EnsureProfile(ctx, auth.Profile{
		UserID:   caller.ID,
		Email:    email,
		FineRole: auth.RoleUser,
		Status:   auth.StatusActive,
	})
	if err != nil {
		return auth.Profile{}, unreachable("ensure profile", err)
	}
	return p, nil
}

// UpdateProfile changes target's role, status or name on behalf of an admin.
func (s *Service) UpdateProfile(ctx context.Context, caller *auth.Identity, target string, changes ProfileChanges) (p auth.Profile, err error) {
	if caller == nil {
		return auth.Profile{}, auth.ErrUnauthenticated
	}
	ctx, span := s.startSpan(ctx, "UpdateProfile", caller)
	defer func() { endSpan(span, err) }()

	if target, err = auth.NormalizeUserID(target); err != nil {
		return auth.Profile{}, err
	}
	upd, err := changes.validate()
	if err != nil {
		return auth.Profile{}, err
	}
	if err = s.requireAdmin(ctx, caller); err != nil {
		return auth.Profile{}, err
	}
	before, err := s.store.GetProfile(ctx, target)
	if err != nil {
		err = unreachable("get profile", err)
		return auth.Profile{}, err
	}
	p, err = s.store.SetProfile(ctx, target, upd)
	if err != nil {
		err = unreachable("update profile", err)
		return auth.Profile{}, err
	}

	obs.ObserveAdminMutation(auth.ActionProfileUpdate)
	s.record(ctx, caller, audit.Entry{
		Action:    auth.ActionProfileUpdate,
		TableName: auth.TableUserProfiles,
		RecordID:  target,
		OldValues: before.Snapshot(),
		NewValues: p.Snapshot(),
	})
	if before.Privileged() != p.Privileged() {
		s.invalidate(ctx, target, auth.ActionProfileUpdate)
	}
	return p, nil
}

// DeleteProfile hard-deletes target's profile. The caller's own profile and
// profiles still holding admin membership are refused.
func (s *Service) DeleteProfile(ctx context.Context, caller *auth.Identity, target string) (err error) {
	if caller == nil {
		return auth.ErrUnauthenticated
	}
	ctx, span := s.startSpan(ctx, "DeleteProfile", caller)
	defer func() { endSpan(span, err) }()

	if target, err = auth.NormalizeUserID(target); err != nil {
		return err
	}
	if target == caller.ID {
		return fmt.Errorf("%w: cannot delete own profile", auth.ErrInvalidInput)
	}
	if err = s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	member, err := s.store.IsAdminMember(ctx, target)
	if err != nil {
		err = unreachable("check admin membership", err)
		return err
	}
	if member {
		err = fmt.Errorf("%w: revoke admin membership before deleting the profile", auth.ErrInvalidInput)
		return err
	}
	before, err := s.store.GetProfile(ctx, target)
	if err != nil {
		err = unreachable("get profile", err)
		return err
	}
	if err = s.store.DeleteProfile(ctx, target); err != nil {
		err = unreachable("delete profile", err)
		return err
	}

	obs.ObserveAdminMutation(auth.ActionProfileDelete)
	s.record(ctx, caller, audit.Entry{
		Action:    auth.ActionProfileDelete,
		TableName: auth.TableUserProfiles,
		RecordID:  target,
		OldValues: before.Snapshot(),
	})
	if before.Privileged() {
		s.invalidate(ctx, target, auth.ActionProfileDelete)
	}
	return nil
}

// Profiles lists all profiles, newest first.
func (s *Service) Profiles(ctx context.Context, caller *auth.Identity) ([]auth.Profile, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	list, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, unreachable("list profiles", err)
	}
	return list, nil
}

// Profile returns target's profile.
func (s *Service) Profile(ctx context.Context, caller *auth.Identity, target string) (auth.Profile, error) {
	if caller == nil {
		return auth.Profile{}, auth.ErrUnauthenticated
	}
	target, err := auth.NormalizeUserID(target)
	if err != nil {
		return auth.Profile{}, err
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return auth.Profile{}, err
	}
	p, err := s.store.GetProfile(ctx, target)
	if err != nil {
		return auth.Profile{}, unreachable("get profile", err)
	}
	return p, nil
}

// Admins lists the admin memberships, newest first.
func (s *Service) Admins(ctx context.Context, caller *auth.Identity) ([]auth.AdminMembership, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	list, err := s.store.ListAdminMembers(ctx)
	if err != nil {
		return nil, unreachable("list admin members", err)
	}
	return list, nil
}
