package permission

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/events"
	"laundrydesk.io/internal/obs"
)

const (
	DefaultRegistrySize = 4096
	DefaultSessionTTL   = 30 * time.Minute
)

// Registry holds the capability sessions of one process, keyed by session id.
type Registry struct {
	checker auth.PermissionChecker

	mu       sync.Mutex
	sessions *lru.LRU[string, *Session]
}

// NewRegistry builds a size-bounded registry whose idle sessions expire after ttl.
func NewRegistry(checker auth.PermissionChecker, size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	onEvict := func(_ string, s *Session) { s.Close() }
	return &Registry{
		checker:  checker,
		sessions: lru.NewLRU[string, *Session](size, onEvict, ttl),
	}
}

// Session returns the session for sessionID bound to id, creating it or
// switching its identity as needed.
func (r *Registry) Session(sessionID string, id auth.Identity) *Session {
	if sessionID == "" {
		sessionID = id.ID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		s = NewSession(r.checker)
		s.Switch(&id)
		r.sessions.Add(sessionID, s)
		return s
	}
	if cur := s.Identity(); cur == nil || cur.ID != id.ID {
		s.Switch(&id)
	}
	return s
}

// Capabilities resolves the capabilities for the identity within ctx.
func (r *Registry) Capabilities(ctx context.Context, sessionID string, id auth.Identity) Capabilities {
	return r.Session(sessionID, id).Wait(ctx)
}

// InvalidateUser re-evaluates every session bound to userID against the
// store and returns how many were affected.
func (r *Registry) InvalidateUser(userID string) int {
	r.mu.Lock()
	sessions := r.sessions.Values()
	r.mu.Unlock()

	if f, ok := r.checker.(forgetter); ok {
		f.Forget(userID)
	}
	n := 0
	for _, s := range sessions {
		if id := s.Identity(); id != nil && id.ID == userID {
			s.refresh()
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Listen consumes invalidation events until ctx ends.
func (r *Registry) Listen(ctx context.Context, sub events.Subscriber) error {
	ch, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	log := obs.Component("permission")
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if evt.Kind != events.KindCapabilitiesChanged || evt.UserID == "" {
				continue
			}
			if n := r.InvalidateUser(evt.UserID); n > 0 {
				log.WithField("user_id", evt.UserID).WithField("sessions", n).Debug("capabilities invalidated")
			}
		}
	}
}
