package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/gearledger-backend/api/controllers"
	"github.com/angelmondragon/gearledger-backend/api/routes"
	"github.com/angelmondragon/gearledger-backend/internal/app"
	stripewebhook "github.com/angelmondragon/gearledger-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/instance"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/migrate"
	"github.com/angelmondragon/gearledger-backend/pkg/redis"
)

const (
	webhookScope    = "stripe_webhook"
	shutdownTimeout = 20 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := app.Build(context.Background(), cfg, logg, dbClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire payment services", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler: services.Reconciler,
		Onboarding: services.Onboarding,
		Payouts:    services.Payouts,
		Logger:     logg,
		Metrics:    services.Metrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	guard, err := stripewebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookLease, cfg.Eventing.WebhookIdempotencyTTL, webhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Idempotency:  redisClient,
		Counters:     redisClient,
		Gatherer:     registry,
		Checkout:     services.Checkout,
		Reconciler:   services.Reconciler,
		Orders:       services.Orders,
		Invoices:     services.Invoices,
		Payouts:      services.Payouts,
		Onboarding:   services.Onboarding,
		Webhooks:     webhookService,
		StripeClient: services.Stripe,
		WebhookGuard: guard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
