package session

import (
	"log/slog"
	"sync"
)

// Factory builds a new session for a project.
type Factory func(project string) (*Session, error)

// Registry is a concurrent directory of live sessions keyed by project
// name, enforcing at most one live session per project.
//
// The mutex guards only the map itself and is held only for pointer swaps.
// Session.Close is never called while holding it: a slow close must not
// block other projects.
type Registry struct {
	newSession Factory

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry using the given session factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		newSession: factory,
		sessions:   make(map[string]*Session),
	}
}

// Get returns the live session for a project, if any.
func (r *Registry) Get(project string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[project]
	return s, ok
}

// Create builds and registers a new session for a project, closing any
// existing one. The old session is popped inside the critical section and
// closed outside it.
func (r *Registry) Create(project string) (*Session, error) {
	s, err := r.newSession(project)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.sessions[project]
	r.sessions[project] = s
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("Error closing replaced session", "project", project, "error", err)
		}
	}
	return s, nil
}

// Remove pops a project's session and closes it.
func (r *Registry) Remove(project string) {
	r.mu.Lock()
	s := r.sessions[project]
	delete(r.sessions, project)
	r.mu.Unlock()

	if s != nil {
		if err := s.Close(); err != nil {
			slog.Warn("Error closing session", "project", project, "error", err)
		}
	}
}

// RemoveIf pops and closes a project's session only if the registry still
// holds exactly s. A stale owner tearing down after being replaced must not
// close its replacement.
func (r *Registry) RemoveIf(project string, s *Session) {
	r.mu.Lock()
	if r.sessions[project] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, project)
	r.mu.Unlock()

	if err := s.Close(); err != nil {
		slog.Warn("Error closing session", "project", project, "error", err)
	}
}

// ListNames returns the names of all projects with a live session.
func (r *Registry) ListNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	return names
}

// CleanupAll atomically drains the registry, then closes every drained
// session. Called at process shutdown.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	drained := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		drained = append(drained, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range drained {
		if err := s.Close(); err != nil {
			slog.Warn("Error closing session during cleanup", "project", s.Project(), "error", err)
		}
	}
}
