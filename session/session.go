// Package session provides persistence for sessions and conversation
// messages. The engine only talks to the repository interfaces; the
// in-memory implementation backs tests and ephemeral use, the Redis one
// backs shared deployments.
package session

import (
	"context"
	"errors"

	"github.com/falai-dev/falai-go/core"
)

// ErrNotFound is returned when a session id has no stored state.
var ErrNotFound = errors.New("session not found")

// ErrAlreadyExists is returned by Create for an id that is already stored.
var ErrAlreadyExists = errors.New("session already exists")

// SessionRepository stores session state. Implementations must treat stored
// sessions as snapshots: a returned session is safe for the caller to
// mutate without affecting the store.
type SessionRepository interface {
	// Create stores a new session, failing with ErrAlreadyExists when the
	// id is taken.
	Create(ctx context.Context, s *core.Session) error
	// FindByID loads a session, failing with ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (*core.Session, error)
	// Update replaces the stored snapshot for s.ID.
	Update(ctx context.Context, s *core.Session) error
	// UpdateCollectedData merges update into the stored session's data
	// without replacing the rest of the snapshot.
	UpdateCollectedData(ctx context.Context, id string, update map[string]any) error
	// Delete removes a session and is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
}

// MessageRepository stores per-session conversation history in order.
type MessageRepository interface {
	Create(ctx context.Context, sessionID string, msg core.Message) error
	FindBySessionID(ctx context.Context, sessionID string) ([]core.Message, error)
	// DeleteBySessionID removes a session's history and is a no-op for
	// unknown ids.
	DeleteBySessionID(ctx context.Context, sessionID string) error
}
