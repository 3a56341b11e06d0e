package recorder

import (
	"sort"
	"sync"
)

// ActiveSet tracks sessions keyed by source name. Every operation holds one
// mutex, so membership checks and the remaining count reported by Remove are
// consistent with each other.
type ActiveSet struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewActiveSet returns an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{sessions: make(map[string]*Session)}
}

// InsertIfAbsent adds s unless its source already has a session or the set
// holds limit sessions. A non-positive limit disables the bound.
func (a *ActiveSet) InsertIfAbsent(s *Session, limit int) error {
	name := s.Name()
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.sessions[name]; exists {
		return ErrAlreadyRecording
	}
	if limit > 0 && len(a.sessions) >= limit {
		return ErrAtCapacity
	}
	a.sessions[name] = s
	return nil
}

// Remove deletes s if it is still the registered session for its source and
// reports how many sessions remain afterwards.
func (a *ActiveSet) Remove(s *Session) (remaining int, removed bool) {
	name := s.Name()
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, ok := a.sessions[name]; ok && current == s {
		delete(a.sessions, name)
		removed = true
	}
	return len(a.sessions), removed
}

// Get returns the session registered for name.
func (a *ActiveSet) Get(name string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[name]
	return s, ok
}

// Has reports whether name has a session.
func (a *ActiveSet) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Len returns the number of sessions.
func (a *ActiveSet) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Snapshot returns session views sorted by source name.
func (a *ActiveSet) Snapshot() []SessionInfo {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
