package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/cassiomorais/payouts/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/payouts/internal/infrastructure/redis"
	"github.com/cassiomorais/payouts/internal/providers"
	"github.com/cassiomorais/payouts/internal/repository/postgres"
	"github.com/cassiomorais/payouts/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Provider providers.Provider

	tracer *sdktrace.TracerProvider
}

// Repositories are the Postgres-backed stores shared by every binary.
type Repositories struct {
	Payouts     *postgres.PayoutRepository
	Ledger      *postgres.LedgerRepository
	Orders      *postgres.OrderRepository
	Outbox      *postgres.OutboxRepository
	Idempotency *postgres.IdempotencyRepository
	Tx          *postgres.TxManager
}

// UseCases are the payout operations wired to one provider instance.
type UseCases struct {
	Create    *payoutApp.CreatePayoutsUseCase
	Run       *payoutApp.RunPayoutUseCase
	Batch     *payoutApp.RunBatchUseCase
	Reconcile *payoutApp.ReconcileLedgerUseCase
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance_id", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	// One provider per process; every run shares its breaker.
	app.Provider, err = providers.New(&cfg.Provider, logger, app.Metrics.BreakerStateChanged)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return app, nil
}

func (a *App) Repositories() *Repositories {
	return &Repositories{
		Payouts:     postgres.NewPayoutRepository(a.Pool),
		Ledger:      postgres.NewLedgerRepository(a.Pool),
		Orders:      postgres.NewOrderRepository(a.Pool),
		Outbox:      postgres.NewOutboxRepository(a.Pool),
		Idempotency: postgres.NewIdempotencyRepository(a.Pool),
		Tx:          postgres.NewTxManager(a.Pool),
	}
}

// Locker adapts the Redis lock to the runner's Locker port.
func (a *App) Locker() payoutApp.Locker {
	locker := infraRedis.NewLocker(a.Redis)
	return payoutApp.LockerFunc(func(ctx context.Context, key string, ttl time.Duration) (payoutApp.Lock, error) {
		l, err := locker.Acquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		return l, nil
	})
}

func (a *App) UseCases(repos *Repositories) *UseCases {
	pc := a.Config.Payout
	run := payoutApp.NewRunPayoutUseCase(
		repos.Payouts, repos.Ledger, repos.Outbox, repos.Tx, a.Locker(), a.Provider,
		payoutApp.RunnerConfig{
			Retry: retry.Config{
				MaxAttempts:    pc.MaxAttempts,
				InitialDelay:   pc.RetryDelay,
				MaxDelay:       pc.MaxRetryDelay,
				AttemptTimeout: pc.AttemptTimeout,
			},
			LockTTL: pc.LockTTL,
		},
		a.Metrics, a.Logger,
	)

	return &UseCases{
		Create:    payoutApp.NewCreatePayoutsUseCase(repos.Orders, repos.Payouts, repos.Tx, a.Logger),
		Run:       run,
		Batch:     payoutApp.NewRunBatchUseCase(repos.Payouts, run, pc.BatchLimit, a.Metrics, a.Logger),
		Reconcile: payoutApp.NewReconcileLedgerUseCase(repos.Payouts, repos.Ledger, pc.BatchLimit, pc.LockTTL, a.Metrics, a.Logger),
	}
}

func (a *App) Close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.Shutdown(ctx, a.tracer)
	}
	a.Redis.Close()
	a.Pool.Close()
}
