package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tryon-backend/api/routes"
	"github.com/angelmondragon/tryon-backend/internal/dispatch"
	"github.com/angelmondragon/tryon-backend/internal/generations"
	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/overage"
	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/internal/ratelimit"
	"github.com/angelmondragon/tryon-backend/internal/tenants"
	paddlewebhook "github.com/angelmondragon/tryon-backend/internal/webhooks/paddle"
	"github.com/angelmondragon/tryon-backend/pkg/config"
	"github.com/angelmondragon/tryon-backend/pkg/db"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/migrate"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
	"github.com/angelmondragon/tryon-backend/pkg/pubsub"
	"github.com/angelmondragon/tryon-backend/pkg/queue"
	"github.com/angelmondragon/tryon-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	catalog, err := plans.NewCatalog(plans.Options{
		RateLimits:    cfg.RateLimit.TierOverrides,
		OveragePrices: cfg.Overage.Prices,
		Currency:      cfg.Overage.CurrencyCode,
	})
	requireResource(ctx, logg, "plan catalog", err)

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)

	limiter, err := ratelimit.NewLimiter(ratelimit.Params{
		Store:   redisClient,
		Plans:   catalog,
		Logger:  logg,
		Metrics: billingMetrics,
		Timeout: cfg.RateLimit.Timeout,
	})
	requireResource(ctx, logg, "rate limiter", err)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Tx:      dbClient,
		Repo:    ledger.NewRepository(dbClient.DB()),
		Timeout: cfg.Timeouts.Ledger,
		Metrics: billingMetrics,
	})
	requireResource(ctx, logg, "ledger service", err)

	tenantService, err := tenants.NewService(dbClient, tenants.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "tenant service", err)

	paddleClient, err := paddle.NewClient(ctx, cfg.Paddle, logg)
	requireResource(ctx, logg, "paddle client", err)

	biller, err := overage.NewBiller(overage.BillerParams{
		Ledger:  ledgerService,
		Charger: paddleClient,
		Plans:   catalog,
		Logger:  logg,
		Metrics: billingMetrics,
	})
	requireResource(ctx, logg, "overage biller", err)

	publisher, closePublisher, err := newPublisher(ctx, cfg, logg, redisClient)
	requireResource(ctx, logg, "task publisher", err)
	defer closePublisher()

	dispatcher, err := dispatch.NewDispatcher(dispatch.Params{
		Ledger:         ledgerService,
		Overage:        biller,
		Generations:    generations.NewRepository(dbClient.DB()),
		Publisher:      publisher,
		Logger:         logg,
		Metrics:        billingMetrics,
		EnqueueTimeout: cfg.Timeouts.Enqueue,
		RecordTimeout:  cfg.Timeouts.Ledger,
	})
	requireResource(ctx, logg, "dispatcher", err)

	claims, err := paddlewebhook.NewIdempotencyGuard(redisClient, cfg.Paddle.ClaimTTL, cfg.Paddle.CompletedClaimTTL)
	requireResource(ctx, logg, "paddle idempotency guard", err)

	processor, err := paddlewebhook.NewProcessor(paddlewebhook.ProcessorParams{
		Secret:       cfg.Paddle.WebhookSecret,
		Tolerance:    cfg.Paddle.SignatureTolerance,
		AuditTimeout: cfg.Timeouts.Audit,
		Ledger:       ledgerService,
		Tenants:      tenantService,
		Audit:        paddlewebhook.NewAuditRepository(dbClient.DB()),
		Claims:       claims,
		Plans:        catalog,
		Logger:       logg,
		Metrics:      billingMetrics,
	})
	requireResource(ctx, logg, "paddle webhook processor", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     id,
		"queue_driver": cfg.Queue.Driver,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Tenants:     tenantService,
			Limiter:     limiter,
			Generations: dispatcher,
			Credits:     ledgerService,
			Paddle:      processor,
			Gatherer:    prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
}

func newPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client) (queue.Publisher, func(), error) {
	if !cfg.Queue.UsesPubSub() {
		p, err := queue.NewRedisPublisher(redisClient, cfg.Queue.RedisList)
		return p, func() {}, err
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, err
	}
	p, err := queue.NewPubSubPublisher(psClient.GenerationPublisher())
	if err != nil {
		_ = psClient.Close()
		return nil, nil, err
	}
	return p, func() {
		p.Stop()
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
