package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/falai-dev/falai-go/core"
)

// InMemorySessionRepository keeps sessions in process memory. Safe for
// concurrent use; every session crossing the boundary is deep-copied so
// callers and the store never share mutable state.
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ SessionRepository = (*InMemorySessionRepository)(nil)

// NewInMemorySessionRepository creates an empty in-memory session store.
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{sessions: map[string]*core.Session{}}
}

func (r *InMemorySessionRepository) Create(_ context.Context, s *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *InMemorySessionRepository) FindByID(_ context.Context, id string) (*core.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (r *InMemorySessionRepository) Update(_ context.Context, s *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *InMemorySessionRepository) UpdateCollectedData(_ context.Context, id string, update map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.MergeData(update)
	return nil
}

func (r *InMemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// InMemoryMessageRepository keeps per-session message history in process
// memory, in append order.
type InMemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]core.Message
}

var _ MessageRepository = (*InMemoryMessageRepository)(nil)

// NewInMemoryMessageRepository creates an empty in-memory message store.
func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{messages: map[string][]core.Message{}}
}

func (r *InMemoryMessageRepository) Create(_ context.Context, sessionID string, msg core.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[sessionID] = append(r.messages[sessionID], msg)
	return nil
}

func (r *InMemoryMessageRepository) FindBySessionID(_ context.Context, sessionID string) ([]core.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.Message(nil), r.messages[sessionID]...), nil
}

func (r *InMemoryMessageRepository) DeleteBySessionID(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, sessionID)
	return nil
}
