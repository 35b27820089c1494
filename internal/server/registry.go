// Package server tracks active sessions in a Registry that is safe for
// concurrent registration, removal and snapshot iteration.
package server

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps session ids to live sessions. It holds non-owning
// references: sessions close their own connections.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds s under its id. It fails with ErrDuplicateSession when the
// id is already present.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return ErrDuplicateSession
	}
	r.sessions[s.ID()] = s
	return nil
}

// Unregister removes the session with the given id and reports whether it
// was present. Removing an absent id is a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// All returns a snapshot of the registered sessions ordered by connection
// time, then id. Callers iterate it without holding the registry lock.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		ti, tj := sessions[i].ConnectedAt(), sessions[j].ConnectedAt()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return sessions[i].ID() < sessions[j].ID()
	})
	return sessions
}

// FindByUsername returns the first session in snapshot order whose username
// matches name. Usernames are not unique; the earliest connection wins.
func (r *Registry) FindByUsername(name string, caseInsensitive bool) (*Session, bool) {
	for _, s := range r.All() {
		username := s.Username()
		if username == name || (caseInsensitive && strings.EqualFold(username, name)) {
			return s, true
		}
	}
	return nil, false
}

// Usernames returns the roster in snapshot order.
func (r *Registry) Usernames() []string {
	sessions := r.All()
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Username())
	}
	return names
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
