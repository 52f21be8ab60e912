package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleConfig holds configuration for the Google sign-in provider.
type GoogleConfig struct {
	ClientID     string        `env:"GOOGLE_OAUTH_CLIENT_ID,required"`
	ClientSecret string        `env:"GOOGLE_OAUTH_CLIENT_SECRET,required"`
	RedirectURL  string        `env:"GOOGLE_OAUTH_REDIRECT_URL,required"`
	Scopes       []string      `env:"GOOGLE_OAUTH_SCOPES" envSeparator:"," envDefault:"https://www.googleapis.com/auth/userinfo.email,https://www.googleapis.com/auth/userinfo.profile"`
	StateTTL     time.Duration `env:"GOOGLE_OAUTH_STATE_TTL" envDefault:"10m"`
}

// GoogleProvider implements Google OAuth sign-in with one-time state
// tokens for CSRF protection.
type GoogleProvider struct {
	conf       *oauth2.Config
	states     StateStore
	stateTTL   time.Duration
	httpClient *http.Client
}

// NewGoogleProvider creates a new Google sign-in provider. Panics if the
// state store is nil.
func NewGoogleProvider(cfg GoogleConfig, states StateStore) *GoogleProvider {
	if states == nil {
		panic("identity: state store is required")
	}
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		states:     states,
		stateTTL:   cfg.StateTTL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL generates an authorization URL with a fresh one-time state token.
func (p *GoogleProvider) AuthURL(ctx context.Context) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := p.states.Store(ctx, state, p.stateTTL); err != nil {
		return "", err
	}
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange validates the callback state, trades the authorization code for
// a token and resolves the Google user profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code, state string) (*Identity, error) {
	if err := p.states.Consume(ctx, state); err != nil {
		return nil, err
	}

	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(ErrInvalidCode, err)
	}

	u, err := p.fetchGoogleUser(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch google user: %w", err)
	}
	if u.Email == "" {
		return nil, ErrNoPrimaryEmail
	}

	return &Identity{
		UID:         u.ID,
		DisplayName: u.Name,
		Email:       u.Email,
		PhotoURL:    u.Picture,
	}, nil
}

func (p *GoogleProvider) fetchGoogleUser(ctx context.Context, accessToken string) (*gUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google api returned status %d", resp.StatusCode)
	}

	var user gUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

type gUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}
