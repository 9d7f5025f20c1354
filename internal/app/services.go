// Package app assembles the payment services shared by the api and cron binaries.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	checkoutsvc "github.com/angelmondragon/gearledger-backend/internal/checkout"
	"github.com/angelmondragon/gearledger-backend/internal/fees"
	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/ledger"
	"github.com/angelmondragon/gearledger-backend/internal/onboarding"
	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/payouts"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/stripe"
)

// Services is the wired payment domain.
type Services struct {
	Stripe       *stripe.Client
	Gateway      provider.Gateway
	Metrics      *metrics.PaymentMetrics
	OrdersRepo   orders.Repository
	InvoicesRepo invoices.Repository
	Reconciler   *reconcile.Service
	Checkout     checkoutsvc.Service
	Orders       orders.Service
	Invoices     invoices.Service
	Payouts      *payouts.Service
	Onboarding   *onboarding.Service
}

// Build wires repositories and services on top of dbClient. reg may be nil.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, fmt.Errorf("config, logger and db client are required")
	}

	stripeClient, gateway, err := newGateway(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	rates, err := fees.NewRateBookFromConfig(cfg.Fees)
	if err != nil {
		return nil, fmt.Errorf("fee rates: %w", err)
	}

	gormDB := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)
	paymentMetrics := metrics.NewPaymentMetrics(reg)
	currency := strings.ToLower(strings.TrimSpace(cfg.Stripe.Currency))

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}
	ordersRepo := orders.NewRepository(gormDB)
	invoicesRepo := invoices.NewRepository(gormDB)

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Orders:            ordersRepo,
		Invoices:          invoicesRepo,
		Ledger:            ledgerSvc,
		Outbox:            emitter,
		Rates:             rates,
		Effects:           reconcile.DefaultEffects(emitter),
		Gateway:           gateway,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           paymentMetrics,
		ExpireOnCancel:    cfg.Checkout.ExpireOnCancel,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}

	checkout, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Orders:     ordersRepo,
		Gateway:    gateway,
		Reconciler: reconciler,
		Retry:      provider.PolicyFromConfig(cfg.Retry),
		Config:     cfg.Checkout,
		Currency:   currency,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	ordersSvc, err := orders.NewService(ordersRepo, invoicesRepo)
	if err != nil {
		return nil, err
	}
	invoicesSvc, err := invoices.NewService(invoicesRepo)
	if err != nil {
		return nil, err
	}

	onboardingSvc, err := onboarding.NewService(onboarding.ServiceParams{
		Repo:              onboarding.NewRepository(gormDB),
		Gateway:           gateway,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		DefaultCountry:    cfg.Checkout.ConnectCountry,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("onboarding service: %w", err)
	}

	payoutsSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:              payouts.NewRepository(gormDB),
		Invoices:          invoicesRepo,
		Ledger:            ledgerSvc,
		Outbox:            emitter,
		Eligibility:       onboardingSvc,
		Gateway:           gateway,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           paymentMetrics,
		Currency:          currency,
		MaxInvoices:       cfg.Payouts.BatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	return &Services{
		Stripe:       stripeClient,
		Gateway:      gateway,
		Metrics:      paymentMetrics,
		OrdersRepo:   ordersRepo,
		InvoicesRepo: invoicesRepo,
		Reconciler:   reconciler,
		Checkout:     checkout,
		Orders:       ordersSvc,
		Invoices:     invoicesSvc,
		Payouts:      payoutsSvc,
		Onboarding:   onboardingSvc,
	}, nil
}

// newGateway returns the Stripe gateway wrapped in retries. Dev runs without
// Stripe credentials fall back to the in-memory fake; other environments fail.
func newGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*stripe.Client, provider.Gateway, error) {
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" && cfg.App.IsDev() {
		logg.Warn(ctx, "stripe api key not set, using in-memory payment gateway")
		return nil, provider.NewFake(), nil
	}
	client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("stripe client: %w", err)
	}
	gateway, err := stripe.NewGateway(client, cfg.Checkout)
	if err != nil {
		return nil, nil, err
	}
	return client, provider.NewRetrying(gateway, provider.PolicyFromConfig(cfg.Retry)), nil
}
