package permission

import (
	"context"
	"sync"

	"laundrydesk.io/internal/auth"
)

// Session caches the capabilities of one sign-in session. Each identity
// change starts a new generation; results from older generations are
// discarded.
type Session struct {
	checker auth.PermissionChecker

	mu       sync.Mutex
	gen      uint64
	identity *auth.Identity
	caps     Capabilities
	cancel   context.CancelFunc
	// done is closed once caps for the current generation are resolved.
	done chan struct{}
}

// NewSession returns a session with no identity.
func NewSession(checker auth.PermissionChecker) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{checker: checker, done: done}
}

// Switch binds the session to id (nil for signed out) and starts a fresh check.
func (s *Session) Switch(id *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(id)
}

func (s *Session) switchLocked(id *auth.Identity) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.caps.Loading {
		// wake waiters of the superseded generation
		close(s.done)
	}
	s.gen++
	s.done = make(chan struct{})

	if id == nil || id.ID == "" {
		s.identity = nil
		s.caps = Capabilities{}
		close(s.done)
		return
	}
	cp := *id
	s.identity = &cp
	s.caps = Loading()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, s.gen, cp, s.done)
}

func (s *Session) run(ctx context.Context, gen uint64, id auth.Identity, done chan struct{}) {
	caps := Evaluate(ctx, s.checker, &id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.caps = caps
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	close(done)
}

// Current returns the latest snapshot without blocking.
func (s *Session) Current() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Identity returns the identity the session is bound to.
func (s *Session) Identity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// Wait blocks until the current generation resolves or ctx ends. On ctx
// expiry the pending snapshot is returned.
func (s *Session) Wait(ctx context.Context) Capabilities {
	for {
		s.mu.Lock()
		gen, done := s.gen, s.done
		s.mu.Unlock()

		select {
		case <-done:
			s.mu.Lock()
			if s.gen == gen {
				caps := s.caps
				s.mu.Unlock()
				return caps
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return s.Current()
		}
	}
}

// forgetter is implemented by checkers that share in-flight lookups.
type forgetter interface {
	Forget(userID string)
}

// Invalidate re-evaluates the bound identity with a fresh store read.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.checker.(forgetter); ok && s.identity != nil {
		f.Forget(s.identity.ID)
	}
	s.switchLocked(s.identity)
}

// refresh re-evaluates the bound identity; the caller has already dropped
// shared lookups for it.
func (s *Session) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(s.identity)
}

// Close cancels any in-flight check.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
