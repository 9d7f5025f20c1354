package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gearledger-backend/internal/app"
	"github.com/angelmondragon/gearledger-backend/internal/cron"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/instance"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
	"github.com/angelmondragon/gearledger-backend/pkg/migrate"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single locked cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := app.Build(context.Background(), cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to wire payment services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.ID(),
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	expiry, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:     logg,
		Orders:     services.OrdersRepo,
		Reconciler: services.Reconciler,
		PendingTTL: cfg.Checkout.PendingTTL,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(expiry); err != nil {
		return nil, err
	}

	if cfg.Payouts.AutoSchedule {
		batch, err := cron.NewPayoutBatchJob(cron.PayoutBatchJobParams{
			Logger:     logg,
			Invoices:   services.InvoicesRepo,
			Onboarding: services.Onboarding,
			Payouts:    services.Payouts,
			Limit:      cfg.Payouts.BatchLimit,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(batch); err != nil {
			return nil, err
		}
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   outbox.NewRepository(dbClient.DB()),
		Retention:    cfg.Cron.OutboxRetention,
		DeadAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}

	if err := registry.Disable(cfg.Cron.DisabledJobs...); err != nil {
		return nil, err
	}
	return registry, nil
}
