package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists one-time OAuth state tokens. Consume must invalidate
// the token so a replayed callback fails state validation.
type StateStore interface {
	Store(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) error
}

const stateKeyPrefix = "oauth:state:"

// RedisStateStore keeps state tokens in redis with a TTL, which makes them
// valid across server instances.
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore creates a redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	if client == nil {
		panic("identity: redis client is required")
	}
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Store(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKeyPrefix+state, "1", ttl).Err(); err != nil {
		return errors.Join(ErrStateStorage, err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) error {
	res, err := s.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) || (err == nil && res == "") {
		return ErrInvalidState
	}
	if err != nil {
		return errors.Join(ErrStateStorage, err)
	}
	return nil
}

// MemoryStateStore is an in-process state store for tests and single-node
// deployments.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]time.Time)}
}

func (s *MemoryStateStore) Store(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	if !ok {
		return ErrInvalidState
	}
	delete(s.states, state)
	if time.Now().After(exp) {
		return ErrInvalidState
	}
	return nil
}
