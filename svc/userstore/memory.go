package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/paywall/pkg/subscription"
)

// MemoryStore is an in-process subscription.UserStore with the same merge
// semantics as MongoStore. Intended for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]subscription.UserRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]subscription.UserRecord)}
}

func (s *MemoryStore) Get(_ context.Context, uid string) (*subscription.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[uid]
	if !ok {
		return nil, subscription.ErrUserNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) SaveSubscription(_ context.Context, uid string, rec subscription.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	user, ok := s.users[uid]
	if !ok {
		user = subscription.UserRecord{UID: uid, CreatedAt: now}
	}
	user.Subscription = rec
	user.LastLogin = now
	s.users[uid] = user
	return nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, user subscription.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	stored, ok := s.users[user.UID]
	if !ok {
		stored = subscription.UserRecord{
			UID:          user.UID,
			Subscription: user.Subscription,
			CreatedAt:    now,
		}
	}
	stored.Name = user.Name
	stored.Email = user.Email
	stored.ProfilePic = user.ProfilePic
	stored.LastLogin = now
	s.users[user.UID] = stored
	return nil
}

var _ subscription.UserStore = (*MemoryStore)(nil)
