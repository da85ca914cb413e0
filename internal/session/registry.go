package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/storage"
	"github.com/rs/zerolog/log"
)

const lockShards = 64

// Registry is the authority on session state. Every status change goes through
// Transition, which serializes changes per session so that check and write
// happen as one step.
type Registry struct {
	store Store
	blobs storage.BlobStore
	locks [lockShards]sync.Mutex
	now   func() time.Time
}

// NewRegistry creates a registry over store whose session files live in blobs
func NewRegistry(store Store, blobs storage.BlobStore) *Registry {
	return &Registry{
		store: store,
		blobs: blobs,
		now:   time.Now,
	}
}

// Blobs returns the blob store holding session files
func (r *Registry) Blobs() storage.BlobStore {
	return r.blobs
}

func (r *Registry) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockShards]
}

// Create allocates a session and its directory. Nothing is registered when the
// directory cannot be created.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()

	if err := r.blobs.CreateSession(ctx, id); err != nil {
		return nil, common.Storage("failed to create session directory", err)
	}

	now := r.now()
	s := &Session{
		ID:          id,
		Status:      StatusCreated,
		StartTime:   now,
		UpdatedTime: now,
	}
	if err := r.store.Put(ctx, s); err != nil {
		if rmErr := r.blobs.RemoveSession(context.WithoutCancel(ctx), id); rmErr != nil {
			log.Warn().Err(rmErr).Str("session_id", id).Msg("failed to roll back session directory")
		}
		return nil, common.Storage("failed to register session", err)
	}

	log.Info().Str("session_id", id).Msg("session created")
	return s.Clone(), nil
}

// Get returns a copy of the session entry
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFound("session not found")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Transition moves the session to status, replacing the status dependent
// fields with those in p. Moves that are not forward along
// created -> processing -> complete|error fail with a conflict.
func (r *Registry) Transition(ctx context.Context, id string, status Status, p Payload) (*Session, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Status.CanTransitionTo(status) {
		return nil, common.Conflict(
			fmt.Sprintf("session is %s", s.Status),
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, status),
		)
	}

	from := s.Status
	s.apply(status, p, r.now())
	if err := r.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log.Info().
		Str("session_id", id).
		Str("from", string(from)).
		Str("to", string(status)).
		Str("tool", s.Tool).
		Msg("session status changed")

	return s.Clone(), nil
}

// Remove deletes the registry entry. Removing an unknown session is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	return r.store.Delete(ctx, id)
}

// Reclaim removes the session directory and its entry. The entry is removed even
// when the directory cannot be; the orphan sweep retries the directory later.
func (r *Registry) Reclaim(ctx context.Context, id string) error {
	dirErr := r.blobs.RemoveSession(ctx, id)
	if err := r.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove session entry: %w", err)
	}
	if dirErr != nil {
		return common.Storage("failed to remove session directory", dirErr)
	}

	log.Info().Str("session_id", id).Msg("session reclaimed")
	return nil
}

// List returns a snapshot of every session
func (r *Registry) List(ctx context.Context) ([]*Session, error) {
	return r.store.List(ctx)
}
