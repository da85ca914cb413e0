package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/rs/zerolog/log"
)

// KeyValueCache is the subset of common.Cache used by RedisStore
type KeyValueCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	GetMany(ctx context.Context, keys []string, fn func(key string, raw []byte) error) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// RedisStore keeps entries as JSON values in Redis so the registry can be
// inspected from outside the process. A ttl > 0 expires entries the sweeper
// never got to.
type RedisStore struct {
	cache  KeyValueCache
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store writing keys of the form <prefix><sessionID>
func NewRedisStore(cache KeyValueCache, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "docdesk:session:"
	}
	return &RedisStore{cache: cache, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.cache.Get(ctx, r.key(id), &s); err != nil {
		if errors.Is(err, common.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	if err := r.cache.Set(ctx, r.key(s.ID), s, r.ttl); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.cache.Delete(ctx, r.key(id)); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List loads every entry under the prefix. Keys that disappear between the
// scan and the read are skipped.
func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	keys, err := r.cache.Keys(ctx, r.prefix)
	if err != nil {
		return nil, err
	}

	out := make([]*Session, 0, len(keys))
	err = r.cache.GetMany(ctx, keys, func(key string, raw []byte) error {
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping unreadable session entry")
			return nil
		}
		out = append(out, &s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
