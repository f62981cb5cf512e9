package session

import (
	"context"
	"sync"
	"time"

	"github.com/maauso/thumbnail-studio/internal/metrics"
	"github.com/maauso/thumbnail-studio/internal/pipeline"
)

// Compile-time check that MemoryRegistry implements Registry.
var _ Registry = (*MemoryRegistry)(nil)

type entry struct {
	session  *pipeline.Session
	lastSeen time.Time
}

// MemoryRegistry is an in-memory implementation of Registry.
// It uses a map with RWMutex for thread-safe access and records when each
// session was last looked up.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// MemoryOption configures a MemoryRegistry.
type MemoryOption func(*MemoryRegistry)

// WithClock replaces time.Now for activity tracking.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRegistry) {
		r.now = now
	}
}

// NewMemoryRegistry creates a new in-memory session registry.
func NewMemoryRegistry(opts ...MemoryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a session. Sessions are shared, not cloned: each one guards its own state.
func (r *MemoryRegistry) Add(_ context.Context, s *pipeline.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; !exists {
		metrics.ActiveSessions.Inc()
	}
	r.sessions[s.ID()] = &entry{session: s, lastSeen: r.now()}
	return nil
}

// Get retrieves a session by its ID and marks it as active.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// List returns all registered sessions.
func (r *MemoryRegistry) List(_ context.Context) ([]*pipeline.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*pipeline.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		result = append(result, e.session)
	}
	return result, nil
}

// Remove unregisters a session and returns it.
func (r *MemoryRegistry) Remove(_ context.Context, id string) (*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Dec()
	return e.session, nil
}

// RemoveIdle unregisters and returns the sessions not looked up for longer
// than idle. Sessions with an extraction or generation in flight are kept.
// The caller closes the returned sessions.
func (r *MemoryRegistry) RemoveIdle(_ context.Context, idle time.Duration) []*pipeline.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	var expired []*pipeline.Session
	for id, e := range r.sessions {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		if st := e.session.Snapshot(); st.IsExtracting || st.IsGenerating {
			continue
		}
		delete(r.sessions, id)
		metrics.ActiveSessions.Dec()
		expired = append(expired, e.session)
	}
	return expired
}
