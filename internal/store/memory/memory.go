// Package memory provides an in-process role and audit store for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/ids"
)

var (
	_ auth.RoleStore  = (*Store)(nil)
	_ auth.AuditStore = (*Store)(nil)
)

// Store keeps profiles, memberships and audit records in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]auth.Profile
	admins   map[string]auth.AdminMembership
	audit    []auth.AuditRecord
	now      func() time.Time
}

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		profiles: make(map[string]auth.Profile),
		admins:   make(map[string]auth.AdminMembership),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

func (s *Store) GetProfile(_ context.Context, userID string) (auth.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]auth.Profile, error) {
	s.mu.RLock()
	out := make([]auth.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) EnsureProfile(_ context.Context, p auth.Profile) (auth.Profile, error) {
	if p.UserID == "" {
		return auth.Profile{}, fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.UserID]; ok {
		return existing, nil
	}
	now := s.stamp()
	if p.ID == "" {
		p.ID = ids.NewAt(now)
	}
	if !p.FineRole.Valid() {
		p.FineRole = auth.RoleUser
	}
	if p.Status == "" {
		p.Status = auth.StatusActive
	}
	p.CoarseRole = p.FineRole.Legacy()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[p.UserID] = p
	return p, nil
}

func (s *Store) SetProfile(_ context.Context, userID string, upd auth.ProfileUpdate) (auth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	if upd.Empty() {
		return p, nil
	}
	p = upd.Apply(p)
	p.UpdatedAt = s.stamp()
	s.profiles[userID] = p
	return p, nil
}

func (s *Store) DeleteProfile(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[userID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.profiles, userID)
	return nil
}

func (s *Store) IsAdminMember(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *Store) ListAdminMembers(_ context.Context) ([]auth.AdminMembership, error) {
	s.mu.RLock()
	out := make([]auth.AdminMembership, 0, len(s.admins))
	for _, m := range s.admins {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GrantAdmin(_ context.Context, target, grantedBy string) (auth.AdminMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[target]; ok {
		return auth.AdminMembership{}, auth.ErrAlreadyMember
	}
	var createdBy *string
	if grantedBy != "" {
		createdBy = &grantedBy
	}
	return s.insertAdminLocked(target, createdBy), nil
}

func (s *Store) RevokeAdmin(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[target]; !ok {
		return auth.ErrNotFound
	}
	delete(s.admins, target)
	return nil
}

func (s *Store) AdminMembersExist(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.admins) > 0, nil
}

// CreateFirstAdmin checks emptiness and inserts under the same lock.
func (s *Store) CreateFirstAdmin(_ context.Context, userID string) (auth.AdminMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.admins) > 0 {
		return auth.AdminMembership{}, auth.ErrAdminsAlreadyExist
	}
	return s.insertAdminLocked(userID, nil), nil
}

func (s *Store) HasAdminPermissions(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.admins[userID]; ok {
		return true, nil
	}
	p, ok := s.profiles[userID]
	return ok && p.Privileged(), nil
}

func (s *Store) insertAdminLocked(userID string, createdBy *string) auth.AdminMembership {
	now := s.stamp()
	m := auth.AdminMembership{
		ID:        ids.NewAt(now),
		UserID:    userID,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	s.admins[userID] = m
	return m
}

func (s *Store) AppendAudit(_ context.Context, rec *auth.AuditRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: audit record is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	if rec.ID == "" {
		rec.ID = ids.NewAt(now)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	s.audit = append(s.audit, *rec)
	return nil
}

// ListAudit returns the newest records first by CreatedAt. Records written
// concurrently may arrive out of order; ties keep the latest append first.
func (s *Store) ListAudit(_ context.Context, limit int) ([]auth.AuditRecord, error) {
	limit = auth.NormalizeAuditLimit(limit)
	s.mu.RLock()
	out := make([]auth.AuditRecord, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		out = append(out, s.audit[i])
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
