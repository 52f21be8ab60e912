package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionConfig holds the server-side session settings.
type SessionConfig struct {
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"paywall_session"`
}

var ErrSessionNotFound = errors.New("account: session not found")

// SessionManager maps opaque session tokens to user IDs in redis, so a
// stolen cookie exposes no user data and sign-out works across instances.
type SessionManager struct {
	client redis.UniversalClient
	cfg    SessionConfig
}

const sessionKeyPrefix = "sess:"

// NewSessionManager creates a redis-backed session manager. Panics if the
// client is nil.
func NewSessionManager(client redis.UniversalClient, cfg SessionConfig) *SessionManager {
	if client == nil {
		panic("account: redis client is required")
	}
	return &SessionManager{client: client, cfg: cfg}
}

// Create issues a fresh session token for the user.
func (m *SessionManager) Create(ctx context.Context, uid string) (string, error) {
	token := uuid.NewString()
	if err := m.client.Set(ctx, sessionKeyPrefix+token, uid, m.cfg.TTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the user ID behind a session token.
func (m *SessionManager) Resolve(ctx context.Context, token string) (string, error) {
	uid, err := m.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	return uid, nil
}

// Destroy invalidates a session token. Destroying an unknown token is not
// an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	return m.client.Del(ctx, sessionKeyPrefix+token).Err()
}
