package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cresco-money/cresco/internal/balance"
	"github.com/cresco-money/cresco/internal/config"
	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/middleware"
	"github.com/cresco-money/cresco/internal/mobilemoney"
	"github.com/cresco-money/cresco/internal/notification"
	"github.com/cresco-money/cresco/internal/payments"
	"github.com/cresco-money/cresco/internal/provisioning"
	"github.com/cresco-money/cresco/internal/stellar"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Gateway and Aggregator may be pre-set by tests; when nil they are
	// built from the config (or replaced by in-memory fakes in dev mode).
	Gateway    stellar.Gateway
	Aggregator mobilemoney.Aggregator
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	// The balance cache has no in-memory stand-in; Redis is always required.
	if d.Cache == nil {
		return fmt.Errorf("redis is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// External collaborators
	gateway := d.Gateway
	if gateway == nil {
		if isDev(d.Cfg.AppEnv) && d.Cfg.HorizonURL == "" {
			gateway = stellar.NewInMemory()
		} else {
			gateway = stellar.NewClient(d.Cfg.HorizonURL, d.Cfg.FriendbotURL, d.Cfg.HTTPTimeout)
		}
	}
	aggregator := d.Aggregator
	if aggregator == nil {
		if d.Cfg.AggregatorURL == "" {
			aggregator = mobilemoney.StaticAggregator{}
		} else {
			aggregator = mobilemoney.NewHTTPAggregator(d.Cfg.AggregatorURL, d.Cfg.HTTPTimeout)
		}
	}

	var store credentials.Store
	if d.DB != nil {
		store = credentials.NewPostgresStore(d.DB)
	} else {
		store = credentials.NewMemoryStore()
	}

	// Services and handlers
	cache := balance.NewCache(d.Cache)
	balanceSvc := balance.NewService(store, gateway, cache, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)
	mobileSvc := mobilemoney.NewService(aggregator, store)
	provisionSvc := provisioning.NewService(gateway, store, mobileSvc, notifier, d.Logger)
	paymentSvc := payments.NewService(store, gateway, balanceSvc, notifier, d.Cfg.NetworkPassphrase, d.Logger)

	balanceHandler := balance.NewHandler(balanceSvc)
	mobileHandler := mobilemoney.NewHandler(mobileSvc)
	provisionHandler := provisioning.NewHandler(provisionSvc)
	paymentHandler := payments.NewHandler(paymentSvc)

	// API routes; everything below requires a valid session token, and
	// unsafe requests require an Idempotency-Key scoped to that session.
	api := app.Group("/api/v1",
		middleware.Session(d.Cfg.SessionSecret),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)

	rateLimiter := middleware.ProvisionRateLimit(d.Cache, 5)
	RegisterWalletRoutes(api, provisionHandler, balanceHandler, rateLimiter)
	RegisterPaymentRoutes(api, paymentHandler)
	RegisterMobileMoneyRoutes(api, mobileHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
