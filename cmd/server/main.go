package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/paywall/modules/account"
	"github.com/dmitrymomot/paywall/modules/billing"
	"github.com/dmitrymomot/paywall/pkg/config"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/identity"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/mongo"
	"github.com/dmitrymomot/paywall/pkg/redis"
	"github.com/dmitrymomot/paywall/pkg/subscription"
	"github.com/dmitrymomot/paywall/svc/userstore"
)

type appConfig struct {
	Logger      logger.Config
	HTTP        httpserver.Config
	Mongo       mongo.Config
	Redis       redis.Config
	Stripe      subscription.StripeConfig
	Google      identity.GoogleConfig
	Entitlement entitlement.Config
	Session     account.SessionConfig

	PlansPath  string `env:"PLANS_PATH"`
	ProPriceID string `env:"STRIPE_PRO_PRICE_ID"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Logger, logger.WithService("paywall"))
	logger.SetAsDefault(log)

	ctx := context.Background()

	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo, cfg.Mongo.Database)
	if err != nil {
		log.Error("mongo connection failed", logger.Error(err))
		os.Exit(1)
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", logger.Error(err))
		os.Exit(1)
	}

	catalog, err := subscription.NewCatalog(ctx, plansSource(cfg))
	if err != nil {
		log.Error("plan catalog failed to load", logger.Error(err))
		os.Exit(1)
	}

	provider, err := subscription.NewStripeProvider(cfg.Stripe)
	if err != nil {
		log.Error("stripe provider init failed", logger.Error(err))
		os.Exit(1)
	}

	store := userstore.NewMongoStore(db)
	subs := subscription.NewService(catalog, provider, store,
		subscription.WithLogger(log),
	)
	cache := entitlement.NewCache(store, catalog.Free().ID, cfg.Entitlement,
		entitlement.WithCacheLogger(log),
	)
	broadcaster := identity.NewBroadcaster()
	broadcaster.OnAuthChange(func(c identity.AuthChange) {
		if c.Identity == nil {
			return
		}
		log.Info("auth state changed", logger.UserID(c.Identity.UID))
	})

	google := identity.NewGoogleProvider(cfg.Google, identity.NewRedisStateStore(rdb))
	sessions := account.NewSessionManager(rdb, cfg.Session)
	accounts := account.NewService(google, sessions, store, cache, broadcaster,
		catalog.Free().ID, cfg.Session.CookieName,
		account.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Mount("/api/stripe", billing.NewService(subs, billing.WithLogger(log)).Handle())
	r.Mount("/auth", accounts.Handle())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// plansSource picks the catalog source: a yaml file when configured,
// otherwise the built-in two-tier ladder patched with the pre-provisioned
// stripe price when one is set.
func plansSource(cfg appConfig) subscription.PlansSource {
	if cfg.PlansPath != "" {
		return subscription.NewYAMLSource(cfg.PlansPath)
	}

	plans := subscription.DefaultPlans()
	if cfg.ProPriceID != "" {
		for i := range plans {
			if !plans[i].IsFree() {
				plans[i].PriceRef = cfg.ProPriceID
			}
		}
	}
	return subscription.NewInMemSource(plans...)
}
