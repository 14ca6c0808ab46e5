// Package sessions tracks named shell sessions: the metadata Registry and the
// Pool of live terminal handles behind it.
package sessions

import (
	"sort"
	"sync"
	"time"

	"shellpilot/internal/logger"
	"shellpilot/pkg/shelltypes"
)

// Registry holds session metadata keyed by name.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]shelltypes.Session
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]shelltypes.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates or overwrites the entry for name. An existing entry keeps
// its CreatedAt; status, command and exit code are replaced and LastActiveAt
// is refreshed.
func (r *Registry) Register(name string, status shelltypes.SessionStatus, command string, exitCode *int) shelltypes.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	session, exists := r.sessions[name]
	if !exists {
		session = shelltypes.Session{Name: name, CreatedAt: now}
	}
	if now.Before(session.CreatedAt) {
		now = session.CreatedAt
	}

	session.Status = status
	session.LastCommand = command
	session.LastExitCode = copyCode(exitCode)
	session.LastActiveAt = now
	r.sessions[name] = session

	logger.SessionOperation("register", name, "status", status, "new", !exists)
	return clone(session)
}

// Get returns a copy of the entry for name.
func (r *Registry) Get(name string) (shelltypes.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[name]
	if !ok {
		return shelltypes.Session{}, false
	}
	return clone(session), true
}

// List reports the live sessions, sorted by name. A live session without an
// entry is reported with status unknown; entries for sessions that are not
// live are left out.
func (r *Registry) List(live []string) []shelltypes.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(live))
	out := make([]shelltypes.Session, 0, len(live))
	for _, name := range live {
		if seen[name] {
			continue
		}
		seen[name] = true

		if session, ok := r.sessions[name]; ok {
			out = append(out, clone(session))
			continue
		}
		out = append(out, shelltypes.Session{Name: name, Status: shelltypes.SessionUnknown})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every entry, sorted by name.
func (r *Registry) All() []shelltypes.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shelltypes.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, clone(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove deletes the entry for name and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; !ok {
		return false
	}
	delete(r.sessions, name)
	logger.SessionOperation("remove", name)
	return true
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]shelltypes.Session)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func clone(s shelltypes.Session) shelltypes.Session {
	s.LastExitCode = copyCode(s.LastExitCode)
	return s
}

func copyCode(code *int) *int {
	if code == nil {
		return nil
	}
	v := *code
	return &v
}
