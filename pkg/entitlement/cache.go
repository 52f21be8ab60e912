package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/subscription"
)

// Entitlement is the cached per-user view that access checks read from.
// It mirrors the persisted user record; the record store stays the source
// of truth and the cache only avoids a round trip per check.
type Entitlement struct {
	UserID       string
	Name         string
	Email        string
	AvatarRef    string
	Subscription subscription.Record
	HydratedAt   time.Time
}

// Config holds cache settings.
type Config struct {
	// HydrateDelay is how long Hydrate waits before the first read. The
	// login flow writes the profile and reads it back immediately; the
	// delay gives an eventually consistent store time to settle.
	HydrateDelay time.Duration `env:"ENTITLEMENT_HYDRATE_DELAY" envDefault:"1s"`
}

// Cache keeps hydrated entitlements in process memory, keyed by user ID.
// It is safe for concurrent use.
type Cache struct {
	store      subscription.UserStore
	freePlanID string
	delay      time.Duration
	log        *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entitlement
}

// CacheOption configures optional Cache settings.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger for hydration failures.
func WithCacheLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCache creates an entitlement cache over the user store. Panics if
// the store is nil or the free plan ID is empty.
func NewCache(store subscription.UserStore, freePlanID string, cfg Config, opts ...CacheOption) *Cache {
	if store == nil {
		panic("entitlement: user store is required")
	}
	if freePlanID == "" {
		panic("entitlement: free plan ID is required")
	}

	c := &Cache{
		store:      store,
		freePlanID: freePlanID,
		delay:      cfg.HydrateDelay,
		log:        slog.New(slog.DiscardHandler),
		entries:    make(map[string]Entitlement),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hydrate reads the user record into the cache and returns the resulting
// entitlement. It waits the configured delay first so a write racing the
// login flow has time to land.
//
// A missing record is normal for first-time users and caches an inactive
// free entitlement. A store failure degrades to an ephemeral free
// entitlement that is NOT cached, so the next call retries the store.
func (c *Cache) Hydrate(ctx context.Context, uid string) (Entitlement, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return Entitlement{}, ctx.Err()
		}
	}

	rec, err := c.store.Get(ctx, uid)
	switch {
	case err == nil:
		ent := Entitlement{
			UserID:       rec.UID,
			Name:         rec.Name,
			Email:        rec.Email,
			AvatarRef:    rec.ProfilePic,
			Subscription: rec.Subscription,
			HydratedAt:   time.Now(),
		}
		c.put(ent)
		return ent, nil

	case errors.Is(err, subscription.ErrUserNotFound):
		ent := c.freeEntitlement(uid)
		c.put(ent)
		return ent, nil

	default:
		c.log.Warn("entitlement hydration failed, serving free tier until retry",
			logger.UserID(uid),
			logger.Error(err),
			logger.Component("entitlement_cache"),
		)
		return c.freeEntitlement(uid), err
	}
}

// Get returns the cached entitlement for a user, if present.
func (c *Cache) Get(uid string) (Entitlement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ent, ok := c.entries[uid]
	return ent, ok
}

// Invalidate drops a user's cached entitlement. Called on sign-out and
// after any write that changes subscription state.
func (c *Cache) Invalidate(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uid)
}

func (c *Cache) put(ent Entitlement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ent.UserID] = ent
}

func (c *Cache) freeEntitlement(uid string) Entitlement {
	return Entitlement{
		UserID:       uid,
		Subscription: subscription.FreeRecord(c.freePlanID),
		HydratedAt:   time.Now(),
	}
}
