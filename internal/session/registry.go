// Package session keeps the live pipeline sessions of the service.
// Sessions are in memory only; nothing survives a restart.
package session

import (
	"context"
	"errors"

	"github.com/maauso/thumbnail-studio/internal/pipeline"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session not found")

// Registry defines the interface for session lookup.
type Registry interface {
	// Add registers a session under its ID, replacing any previous one.
	Add(ctx context.Context, s *pipeline.Session) error

	// Get returns the session with the given ID.
	// Returns ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*pipeline.Session, error)

	// List returns all sessions.
	List(ctx context.Context) ([]*pipeline.Session, error)

	// Remove unregisters and returns a session. The caller closes it.
	// Returns ErrSessionNotFound if the session does not exist.
	Remove(ctx context.Context, id string) (*pipeline.Session, error)
}
