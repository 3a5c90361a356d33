package service

import (
	"log/slog"
	"sync"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// Registry is the process-wide table of live wager sessions and the
// participant busy-locks that prevent double-booking. It owns both tables
// behind a single mutex and is the only writer of the identity mapping.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	byIdentity map[string]string // identity -> session id
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]string),
		logger:     logger.With(slog.String("component", "registry")),
	}
}

// reserve atomically claims both identities for sessionID and registers the
// session. Returns domain.ErrParticipantBusy if either identity is already in
// a live session.
func (r *Registry) reserve(s *Session, identities ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range identities {
		if _, busy := r.byIdentity[id]; busy {
			return domain.ErrParticipantBusy
		}
	}
	for _, id := range identities {
		r.byIdentity[id] = s.ID()
	}
	r.sessions[s.ID()] = s
	return nil
}

// releaseIdentities frees the busy-locks without removing the session. Used
// for the match handoff, where the lock must be released before the match
// component reserves the players itself.
func (r *Registry) releaseIdentities(identities ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range identities {
		delete(r.byIdentity, id)
	}
}

// reacquireIdentities re-claims identities for a session after a failed match
// handoff. Returns false if someone else grabbed an identity in the window.
func (r *Registry) reacquireIdentities(s *Session, identities ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range identities {
		if holder, busy := r.byIdentity[id]; busy && holder != s.ID() {
			return false
		}
	}
	for _, id := range identities {
		r.byIdentity[id] = s.ID()
	}
	return true
}

// remove drops the session and frees both busy-locks. Called exactly once per
// session, from its terminal transition.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s.ID())
	for id, sid := range r.byIdentity {
		if sid == s.ID() {
			delete(r.byIdentity, id)
		}
	}
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// FindByParticipants returns the live session involving both identities, or
// nil if there is none.
func (r *Registry) FindByParticipants(identityA, identityB string) *Session {
	if identityA == identityB {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		a, b := s.Parties()
		ids := map[string]bool{a.Identity: true, b.Identity: true}
		if ids[identityA] && ids[identityB] {
			return s
		}
	}
	return nil
}

// All returns a snapshot of every live session.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops the poll loops and timers of every live session without
// settling them. Funds already in escrow stay put; the sessions are
// recoverable by the operator after restart.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.stopTimers()
	}
	if len(live) > 0 {
		r.logger.Warn("shut down with live sessions", slog.Int("count", len(live)))
	}
}
