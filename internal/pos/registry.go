package pos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type sessionEntry struct {
	mu sync.Mutex
	s  *Session
}

// Registry owns the live sessions of this process. Each register keeps
// one session; lookups go by session id. With serializes all work on a
// session so engine operations never race.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry builds a registry that expires sessions idle longer than
// ttl. A non-positive ttl disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create opens a fresh empty session and returns it.
func (r *Registry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = &sessionEntry{s: s}
	r.mu.Unlock()
	return s
}

// With runs fn while holding the session's lock. All reads and writes
// of a session must go through here.
func (r *Registry) With(id string, fn func(*Session) error) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.s)
}

// Delete drops a session from the registry.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len reports how many sessions are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many were
// dropped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if e.s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions on an interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("session sweep")
			}
		}
	}
}
