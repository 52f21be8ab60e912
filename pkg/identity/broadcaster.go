package identity

import "sync"

// AuthChange describes a sign-in state transition. Identity is nil on
// sign-out.
type AuthChange struct {
	Identity *Identity
}

// Broadcaster fans auth state transitions out to registered listeners,
// which lets entitlement caches and UI surfaces react to sign-in and
// sign-out without polling. Listeners run synchronously on the
// broadcasting goroutine and must not block.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(AuthChange)
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]func(AuthChange))}
}

// OnAuthChange registers a listener and returns an unsubscribe function.
// Unsubscribing is idempotent.
func (b *Broadcaster) OnAuthChange(fn func(AuthChange)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// SignedIn notifies listeners that the given identity signed in.
func (b *Broadcaster) SignedIn(id *Identity) {
	b.notify(AuthChange{Identity: id})
}

// SignedOut notifies listeners that the current identity signed out.
func (b *Broadcaster) SignedOut() {
	b.notify(AuthChange{})
}

func (b *Broadcaster) notify(change AuthChange) {
	b.mu.RLock()
	fns := make([]func(AuthChange), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
