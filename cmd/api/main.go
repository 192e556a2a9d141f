// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/auth"
	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/health"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
	"github.com/carterperez-dev/templates/storefront-billing/internal/migrations"
	"github.com/carterperez-dev/templates/storefront-billing/internal/ops"
	"github.com/carterperez-dev/templates/storefront-billing/internal/server"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db.DB.DB); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	verifier := auth.NewVerifier(cfg.Auth)
	if !verifier.Configured() {
		logger.Warn("no token verification key configured; authenticated routes will reject all requests")
	}

	alerts := alert.NewFromConfig(cfg.Alert, logger)
	logger.Info("ops alerting configured", "channels", alerts.Channels())

	tenantRepo := tenant.NewRepository(db.DB)
	tenantSvc := tenant.NewService(tenantRepo)

	processor := billing.NewStripeProcessor(cfg.Stripe)
	if cfg.Stripe.SecretKey == "" {
		logger.Warn("stripe secret key not configured; billing calls will fail")
	}

	reconciler := billing.NewReconciler(
		tenantRepo,
		billing.NewPeriodResolver(processor, logger),
		logger,
	)

	webhookHandler := billing.NewWebhookHandler(billing.WebhookConfig{
		Secret:     cfg.Stripe.WebhookSecret,
		Reconciler: reconciler,
		Processor:  processor,
		Store:      tenantRepo,
		Deduper:    billing.NewEventDeduper(redis.Client, redis.Prefix(), cfg.Billing.WebhookDedupeTTL),
		Alerter:    alerts,
		Logger:     logger,
	})

	billingSvc := billing.NewService(
		tenantRepo,
		tenantSvc,
		processor,
		alerts,
		billing.ServiceConfig{
			AppBaseURL:         cfg.Billing.AppBaseURL,
			ProPriceID:         cfg.Stripe.ProPriceID,
			DefaultSuccessPath: cfg.Billing.DefaultSuccessPath,
			DefaultCancelPath:  cfg.Billing.DefaultCancelPath,
			DefaultReturnPath:  cfg.Billing.DefaultReturnPath,
		},
		logger,
	)
	billingHandler := billing.NewHandler(billingSvc, webhookHandler)

	opsHandler := ops.NewHandler(ops.NewService(ops.Config{
		Store:      tenantRepo,
		Scopes:     tenantSvc,
		Processor:  processor,
		Reconciler: reconciler,
		Alerter:    alerts,
		Presence:   cfg.Presence(),
		Infra: ops.InfraSources{
			DBStats:    db.Stats,
			RedisStats: redis.PoolStats,
			DBPing:     db.Ping,
			RedisPing:  redis.Ping,
		},
		Logger: logger,
	}))

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer(logger, alerts))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	apiLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:   middleware.LimitFromConfig(cfg.RateLimit),
		Scope:   redis.Key("ratelimit", "api"),
		KeyFunc: middleware.KeyByUser,
		Logger:  logger,
	})

	mountRoutes(router, routeDeps{
		Health:   healthHandler,
		Billing:  billingHandler,
		Ops:      opsHandler,
		Verifier: verifier,
		Limiter:  apiLimiter,
		Admin:    cfg.Admin,
		Metrics:  cfg.Metrics,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := alerts.Wait(shutdownCtx); err != nil {
		logger.Error("pending alerts not delivered", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
