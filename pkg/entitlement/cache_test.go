package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/subscription"
)

type stubStore struct {
	record *subscription.UserRecord
	err    error
	calls  int
}

func (s *stubStore) Get(context.Context, string) (*subscription.UserRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func (s *stubStore) SaveSubscription(context.Context, string, subscription.Record) error {
	return nil
}

func (s *stubStore) SaveProfile(context.Context, subscription.UserRecord) error {
	return nil
}

func TestCacheHydrate(t *testing.T) {
	t.Parallel()

	t.Run("caches the stored record", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{record: &subscription.UserRecord{
			UID:   "u1",
			Name:  "Ada",
			Email: "ada@example.com",
			Subscription: subscription.Record{
				IsActive:       true,
				PlanID:         "pro",
				SubscriptionID: "sub_1",
			},
		}}
		cache := entitlement.NewCache(store, "free", entitlement.Config{})

		ent, err := cache.Hydrate(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "pro", ent.Subscription.PlanID)
		assert.True(t, ent.Subscription.IsActive)
		assert.False(t, ent.HydratedAt.IsZero())

		cached, ok := cache.Get("u1")
		require.True(t, ok)
		assert.Equal(t, ent, cached)
	})

	t.Run("missing record caches free tier", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{err: subscription.ErrUserNotFound}
		cache := entitlement.NewCache(store, "free", entitlement.Config{})

		ent, err := cache.Hydrate(context.Background(), "new-user")
		require.NoError(t, err)
		assert.False(t, ent.Subscription.IsActive)
		assert.Equal(t, "free", ent.Subscription.PlanID)

		_, ok := cache.Get("new-user")
		assert.True(t, ok)
	})

	t.Run("store failure serves free tier without caching", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{err: errors.New("connection reset")}
		cache := entitlement.NewCache(store, "free", entitlement.Config{})

		ent, err := cache.Hydrate(context.Background(), "u1")
		require.Error(t, err)
		assert.Equal(t, "free", ent.Subscription.PlanID)

		// Not cached, so the next hydration retries the store.
		_, ok := cache.Get("u1")
		assert.False(t, ok)

		_, _ = cache.Hydrate(context.Background(), "u1")
		assert.Equal(t, 2, store.calls)
	})

	t.Run("respects the hydrate delay", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{err: subscription.ErrUserNotFound}
		cache := entitlement.NewCache(store, "free", entitlement.Config{HydrateDelay: 30 * time.Millisecond})

		start := time.Now()
		_, err := cache.Hydrate(context.Background(), "u1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("cancelled context aborts the delay", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{}
		cache := entitlement.NewCache(store, "free", entitlement.Config{HydrateDelay: time.Minute})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := cache.Hydrate(ctx, "u1")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, store.calls)
	})
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	store := &stubStore{err: subscription.ErrUserNotFound}
	cache := entitlement.NewCache(store, "free", entitlement.Config{})

	_, err := cache.Hydrate(context.Background(), "u1")
	require.NoError(t, err)

	cache.Invalidate("u1")
	_, ok := cache.Get("u1")
	assert.False(t, ok)
}

func TestNewCachePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { entitlement.NewCache(nil, "free", entitlement.Config{}) })
	assert.Panics(t, func() { entitlement.NewCache(&stubStore{}, "", entitlement.Config{}) })
}
