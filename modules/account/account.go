// Package account handles the sign-in surface: Google OAuth login,
// callback, logout and the session cookie that ties a browser to a user.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/paywall/core"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/identity"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/subscription"
)

// Service wires the OAuth provider, session manager, user store and
// entitlement cache into the login flow.
type Service struct {
	provider    *identity.GoogleProvider
	sessions    *SessionManager
	store       subscription.UserStore
	cache       *entitlement.Cache
	broadcaster *identity.Broadcaster
	freePlanID  string
	cookieName  string
	log         *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the account module. Panics on nil required deps.
func NewService(
	provider *identity.GoogleProvider,
	sessions *SessionManager,
	store subscription.UserStore,
	cache *entitlement.Cache,
	broadcaster *identity.Broadcaster,
	freePlanID string,
	cookieName string,
	opts ...ServiceOption,
) *Service {
	if provider == nil {
		panic("account: identity provider is required")
	}
	if sessions == nil {
		panic("account: session manager is required")
	}
	if store == nil {
		panic("account: user store is required")
	}
	if cache == nil {
		panic("account: entitlement cache is required")
	}
	if broadcaster == nil {
		panic("account: broadcaster is required")
	}

	s := &Service{
		provider:    provider,
		sessions:    sessions,
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		freePlanID:  freePlanID,
		cookieName:  cookieName,
		log:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the module's router, intended to be mounted under /auth.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/login", s.login)
	r.Get("/callback", s.callback)
	r.Get("/logout", s.logout)

	return r
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	url, err := s.provider.AuthURL(r.Context())
	if err != nil {
		s.log.Error("failed to start oauth flow",
			logger.Error(err),
			logger.Component("account"),
		)
		core.Error(w, core.ErrInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Service) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := s.provider.Exchange(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidState) || errors.Is(err, identity.ErrInvalidCode) {
			core.Error(w, core.ErrUnauthorized)
			return
		}
		s.log.Error("oauth callback failed",
			logger.Error(err),
			logger.Component("account"),
		)
		core.Error(w, core.ErrInternalServerError)
		return
	}

	// First login seeds an inactive free subscription; repeat logins only
	// refresh profile fields.
	if err := s.store.SaveProfile(r.Context(), subscription.UserRecord{
		UID:          id.UID,
		Name:         id.DisplayName,
		Email:        id.Email,
		ProfilePic:   id.PhotoURL,
		Subscription: subscription.FreeRecord(s.freePlanID),
	}); err != nil {
		s.log.Error("failed to persist user profile",
			logger.UserID(id.UID),
			logger.Error(err),
			logger.Component("account"),
		)
		core.Error(w, core.ErrInternalServerError)
		return
	}

	token, err := s.sessions.Create(r.Context(), id.UID)
	if err != nil {
		s.log.Error("failed to create session",
			logger.UserID(id.UID),
			logger.Error(err),
			logger.Component("account"),
		)
		core.Error(w, core.ErrInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	s.broadcaster.SignedIn(id)

	// Hydration runs off the request so the redirect is not held up by
	// the configured settle delay.
	go func(uid string) {
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.cache.Hydrate(ctx, uid); err != nil {
			s.log.Warn("post-login entitlement hydration failed",
				logger.UserID(uid),
				logger.Error(err),
				logger.Component("account"),
			)
		}
	}(id.UID)

	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cookieName)
	if err == nil && cookie.Value != "" {
		uid, resolveErr := s.sessions.Resolve(r.Context(), cookie.Value)
		if destroyErr := s.sessions.Destroy(r.Context(), cookie.Value); destroyErr != nil {
			s.log.Error("failed to destroy session",
				logger.Error(destroyErr),
				logger.Component("account"),
			)
		}
		if resolveErr == nil {
			s.cache.Invalidate(uid)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	s.broadcaster.SignedOut()
	http.Redirect(w, r, "/", http.StatusFound)
}
