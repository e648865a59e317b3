package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/idempotency"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/reference"
	"github.com/congo-pay/wallet_ledger/internal/retry"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and
// NATS are optional in development; in-memory stores replace the first two
// and events are only logged without the third.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	NATS     *nats.Conn
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Acquirer funding.Acquirer
}

// Setup configures middlewares and all application routes. Background work
// such as the idempotency janitor stops when ctx is cancelled.
func Setup(ctx context.Context, app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	m := metrics.NewMetrics(d.Registry)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(metrics.HTTPMiddleware(m))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	var (
		walletRepo wallet.Repository
		txLog      ledger.Log
		idemStore  idempotency.Store
	)
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
		txLog = ledger.NewPostgresLog(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
		txLog = ledger.NewInMemory()
	}
	if d.Cache != nil {
		idemStore = idempotency.NewRedisStore(d.Cache)
	} else {
		idemStore = idempotency.NewMemoryStore()
	}

	guard := idempotency.NewGuard(idemStore,
		idempotency.WithTTL(d.Cfg.IdempotencyTTL),
		idempotency.WithLogger(d.Logger),
		idempotency.WithMetrics(m),
	)
	go guard.RunJanitor(ctx, d.Cfg.SweepInterval)

	refs := reference.New(d.Cfg.ReferencePrefix)
	notifier := buildNotifier(d, m)
	policy := retry.Policy{MaxAttempts: d.Cfg.MaxAttempts, Base: d.Cfg.RetryBackoff}

	walletSvc := wallet.NewService(walletRepo, txLog)
	paymentSvc := payments.NewService(walletRepo, txLog, guard, refs, notifier,
		payments.WithLogger(d.Logger),
		payments.WithMetrics(m),
		payments.WithMaxAmount(d.Cfg.MaxAmount),
		payments.WithRetryPolicy(policy),
	)
	fundingOpts := []funding.Option{
		funding.WithNotifier(notifier),
		funding.WithLogger(d.Logger),
		funding.WithMetrics(m),
		funding.WithMaxAmount(d.Cfg.MaxAmount),
		funding.WithRetryPolicy(policy),
	}
	if d.Acquirer != nil {
		fundingOpts = append(fundingOpts, funding.WithAcquirer(d.Acquirer))
	}
	fundingSvc, err := funding.NewService(walletRepo, txLog, guard, refs, fundingOpts...)
	if err != nil {
		return err
	}

	api := app.Group("/api/v1", middleware.Idempotency())
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, wallet.NewHandler(walletSvc))
	RegisterFundingRoutes(api, funding.NewHandler(fundingSvc))
	RegisterPaymentRoutes(api, payments.NewHandler(paymentSvc))

	return nil
}

// buildNotifier always logs events and additionally publishes them when a NATS
// connection is available.
func buildNotifier(d Deps, m *metrics.Metrics) notification.Notifier {
	logNotifier := notification.NewLoggerNotifier(d.Logger)
	if d.NATS == nil {
		return logNotifier
	}
	return notification.Multi{logNotifier, notification.NewNATSNotifier(d.NATS, d.Logger, m)}
}
