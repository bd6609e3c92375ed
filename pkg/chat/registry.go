package chat

import "sync"

// Registry is the single source of truth for live sessions and reserved
// usernames. All mutations and lookups go through its mutex, so no caller
// ever observes a torn state: concurrent TryReserve calls for one name
// cannot both succeed, and a broadcast snapshot never sees a half-inserted
// session.
//
// Invariant: a username is reserved iff exactly one live session carries it
// with authenticated set. Usernames are case-sensitive and compared exactly
// as normalized.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	names    map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
		names:    make(map[string]*Session),
	}
}

// Add registers a session. The session may still be unauthenticated.
func (r *Registry) Add(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess] = struct{}{}
}

// Remove deletes a session and releases its username reservation if this
// session holds one. No-op if the session was already removed.
func (r *Registry) Remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sess)
	for name, owner := range r.names {
		if owner == sess {
			delete(r.names, name)
			break
		}
	}
}

// TryReserve records name for sess iff the name is not already reserved.
// The caller rejects empty-after-normalization names before calling.
func (r *Registry) TryReserve(name string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return false
	}
	r.names[name] = sess
	return true
}

// Release removes a reservation. No-op if the name is not reserved.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// IsOnline reports whether name is currently reserved.
func (r *Registry) IsOnline(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// FindByUsername returns the session holding name, if any.
func (r *Registry) FindByUsername(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.names[name]
	return sess, ok
}

// Snapshot returns a stable copy of all live sessions for iteration.
// Writes against the snapshot happen outside the registry lock, so a slow
// peer cannot stall reservation traffic. Sessions added after the snapshot
// was taken are simply not part of it.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count returns the number of live sessions, authenticated or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OnlineCount returns the number of reserved usernames.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
