// Package bootstrap implements the first-admin protocol and every
// privileged mutation of roles and profiles.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"laundrydesk.io/internal/audit"
	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/events"
	"laundrydesk.io/internal/obs"
)

// State is the caller's position in the bootstrap protocol.
type State int

const (
	// StateNoAdmins: no admin membership exists; the caller may become the first admin.
	StateNoAdmins State = iota
	// StateDenied: admins exist and the caller is not one of them.
	StateDenied
	// StateAdmin: the caller holds admin permissions.
	StateAdmin
)

func (s State) String() string {
	switch s {
	case StateNoAdmins:
		return "no_admins"
	case StateDenied:
		return "denied"
	case StateAdmin:
		return "admin"
	}
	return "unknown"
}

// Auditor records privileged mutations.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service applies authorized role mutations.
type Service struct {
	store     auth.RoleStore
	auditor   Auditor
	publisher events.Publisher
	tracer    trace.Tracer
	auditLog  auth.AuditStore
}

// Option configures Service.
type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithAuditLog enables reading the persisted audit trail.
func WithAuditLog(store auth.AuditStore) Option {
	return func(s *Service) {
		s.auditLog = store
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

type discardAuditor struct{}

func (discardAuditor) Record(context.Context, audit.Entry) {}

// NewService constructs a Service over store.
func NewService(store auth.RoleStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	s := &Service{
		store:     store,
		auditor:   discardAuditor{},
		publisher: events.Discard{},
		tracer:    obs.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) startSpan(ctx context.Context, name string, caller *auth.Identity) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "bootstrap."+name)
	if caller != nil {
		span.SetAttributes(attribute.String("laundrydesk.caller", caller.ID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// unreachable marks a failed store call. Known sentinel errors keep their identity.
func unreachable(op string, err error) error {
	for _, known := range []error{
		auth.ErrStoreUnreachable, auth.ErrNotFound, auth.ErrAlreadyMember,
		auth.ErrAdminsAlreadyExist, auth.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, auth.ErrStoreUnreachable, err)
}

func (s *Service) requireAdmin(ctx context.Context, caller *auth.Identity) error {
	ok, err := s.store.HasAdminPermissions(ctx, caller.ID)
	if err != nil {
		return unreachable("check admin permissions", err)
	}
	if !ok {
		return auth.ErrPermissionDenied
	}
	return nil
}

// record attributes e to caller regardless of what ctx already carries.
func (s *Service) record(ctx context.Context, caller *auth.Identity, e audit.Entry) {
	s.auditor.Record(auth.ContextWithIdentity(ctx, *caller), e)
}

func (s *Service) invalidate(ctx context.Context, userID, action string) {
	evt := events.Event{Kind: events.KindCapabilitiesChanged, UserID: userID, Action: action}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		obs.Component("bootstrap").WithError(err).WithField("user_id", userID).Warn("publish invalidation failed")
	}
}

// State reports where caller stands in the bootstrap protocol.
func (s *Service) State(ctx context.Context, caller *auth.Identity) (State, error) {
	if caller == nil {
		return StateDenied, auth.ErrUnauthenticated
	}
	ctx, span := s.startSpan(ctx, "State", caller)
	var err error
	defer func() { endSpan(span, err) }()

	var admin bool
	if admin, err = s.store.HasAdminPermissions(ctx, caller.ID); err != nil {
		err = unreachable("check admin permissions", err)
		return StateDenied, err
	}
	if admin {
		return StateAdmin, nil
	}
	var exist bool
	if exist, err = s.store.AdminMembersExist(ctx); err != nil {
		err = unreachable("check admin members", err)
		return StateDenied, err
	}
	if !exist {
		return StateNoAdmins, nil
	}
	return StateDenied, nil
}

// BecomeFirstAdmin grants caller the first admin membership. The emptiness
// check and the insert are a single store operation; concurrent callers
// that lose get ErrAdminsAlreadyExist.
func (s *Service) BecomeFirstAdmin(ctx context.Context, caller *auth.Identity) (m auth.AdminMembership, err error) {
	if caller == nil {
		obs.ObserveBootstrap("unauthenticated")
		return auth.AdminMembership{}, auth.ErrUnauthenticated
	}
	ctx, span := s.startSpan(ctx, "BecomeFirstAdmin", caller)
	defer func() { endSpan(span, err) }()

	admin, err := s.store.HasAdminPermissions(ctx, caller.ID)
	if err != nil {
		obs.ObserveBootstrap("error")
		return auth.AdminMembership{}, unreachable("check admin permissions", err)
	}
	if admin {
		obs.ObserveBootstrap("already_admin")
		return auth.AdminMembership{}, auth.ErrAlreadyAdmin
	}

	m, err = s.store.CreateFirstAdmin(ctx, caller.ID)
	if errors.Is(err, auth.ErrAdminsAlreadyExist) {
		obs.ObserveBootstrap("lost_race")
		return auth.AdminMembership{}, err
	}
	if err != nil {
		obs.ObserveBootstrap("error")
		return auth.AdminMembership{}, unreachable("create first admin", err)
	}

	obs.ObserveBootstrap("granted")
	obs.ObserveAdminMutation(auth.ActionBootstrap)
	s.record(ctx, caller, audit.Entry{
		Action:    auth.ActionBootstrap,
		TableName: auth.TableAdminUsers,
		RecordID:  caller.ID,
		OldValues: map[string]any{"is_admin": false},
		NewValues: membershipValues(m),
	})
	s.invalidate(ctx, caller.ID, auth.ActionBootstrap)
	return m, nil
}

// GrantAdmin adds target to the admin members on behalf of caller.
func (s *Service) GrantAdmin(ctx context.Context, caller *auth.Identity, target string) (m auth.AdminMembership, err error) {
	if caller == nil {
		return auth.AdminMembership{}, auth.ErrUnauthenticated
	}
	ctx, span := s.startSpan(ctx, "GrantAdmin", caller)
	defer func() { endSpan(span, err) }()

	if target, err = auth.NormalizeUserID(target); err != nil {
		return auth.AdminMembership{}, err
	}
	if err = s.requireAdmin(ctx, caller); err != nil {
		return auth.AdminMembership{}, err
	}
	m, err = s.store.GrantAdmin(ctx, target, caller.ID)
	if err != nil {
		err = unreachable("grant admin", err)
		return auth.AdminMembership{}, err
	}

	obs.ObserveAdminMutation(auth.ActionGrantAdmin)
	s.record(ctx, caller, audit.Entry{
		Action:    auth.ActionGrantAdmin,
		TableName: auth.TableAdminUsers,
		RecordID:  target,
		OldValues: map[string]any{"is_admin": false},
		NewValues: membershipValues(m),
	})
	s.invalidate(ctx, target, auth.ActionGrantAdmin)
	return m, nil
}

// RevokeAdmin removes target's membership. Revoking oneself is refused
// before any other check.
func (s *Service) RevokeAdmin(ctx context.Context, caller *auth.Identity, target string) (err error) {
	if caller == nil {
		return auth.ErrUnauthenticated
	}
	if strings.TrimSpace(target) == caller.ID {
		return auth.ErrSelfRevocationForbidden
	}
	ctx, span := s.startSpan(ctx, "RevokeAdmin", caller)
	defer func() { endSpan(span, err) }()

	if target, err = auth.NormalizeUserID(target); err != nil {
		return err
	}
	if err = s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if err = s.store.RevokeAdmin(ctx, target); err != nil {
		err = unreachable("revoke admin", err)
		return err
	}

	obs.ObserveAdminMutation(auth.ActionRevokeAdmin)
	s.record(ctx, caller, audit.Entry{
		Action:    auth.ActionRevokeAdmin,
		TableName: auth.TableAdminUsers,
		RecordID:  target,
		OldValues: map[string]any{"user_id": target, "is_admin": true},
		NewValues: map[string]any{"user_id": target, "is_admin": false},
	})
	s.invalidate(ctx, target, auth.ActionRevokeAdmin)
	return nil
}

func membershipValues(m auth.AdminMembership) map[string]any {
	values := map[string]any{
		"id":       m.ID,
		"user_id":  m.UserID,
		"is_admin": true,
	}
	if m.CreatedBy != nil {
		values["created_by"] = *m.CreatedBy
	}
	return values
}

// AuditLog returns up to limit audit records, newest first.
func (s *Service) AuditLog(ctx context.Context, caller *auth.Identity, limit int) ([]auth.AuditRecord, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if s.auditLog == nil {
		return nil, fmt.Errorf("%w: audit log is not configured", auth.ErrStoreUnreachable)
	}
	recs, err := s.auditLog.ListAudit(ctx, auth.NormalizeAuditLimit(limit))
	if err != nil {
		return nil, unreachable("list audit", err)
	}
	return recs, nil
}
