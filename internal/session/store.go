package session

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by a Store when no entry exists for the id
var ErrNotFound = errors.New("session not found")

// Store persists registry entries. Implementations must return copies so that
// callers never share state with the store.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// MemoryStore keeps entries in a process-local map
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// List returns every entry ordered by start time
func (m *MemoryStore) List(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
