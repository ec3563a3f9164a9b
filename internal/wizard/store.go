package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore persists session snapshots so a wizard survives an
// instance restart. Implementations must return ErrSessionNotFound for
// unknown or expired IDs.
type SessionStore interface {
	Save(ctx context.Context, st *State) error
	Load(ctx context.Context, sessionID string) (*State, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps session snapshots in Redis as JSON with an idle TTL.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a session store. ttl bounds how long an idle
// draft is kept; every Save renews it.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{redis: redisClient, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("wizard:session:%s", sessionID)
}

// Save writes the snapshot and renews the TTL.
func (s *RedisStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("wizard: marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(st.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("wizard: save session: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by session ID.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*State, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("wizard: load session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("wizard: unmarshal session: %w", err)
	}
	return &st, nil
}

// Delete removes a snapshot on confirm or cancel.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("wizard: delete session: %w", err)
	}
	return nil
}

// InMemoryStore is a map-backed SessionStore for tests and local dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*State)}
}

func (s *InMemoryStore) Save(ctx context.Context, st *State) error {
	cp := *st
	s.mu.Lock()
	s.sessions[st.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
