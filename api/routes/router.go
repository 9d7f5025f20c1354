package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gearledger-backend/api/controllers"
	connectcontrollers "github.com/angelmondragon/gearledger-backend/api/controllers/connect"
	ordercontrollers "github.com/angelmondragon/gearledger-backend/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/gearledger-backend/api/controllers/payouts"
	webhookcontrollers "github.com/angelmondragon/gearledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gearledger-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/gearledger-backend/internal/checkout"
	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/redis"
)

type reconciler interface {
	controllers.CheckoutConfirmer
	Cancel(ctx context.Context, orderID uuid.UUID, actor reconcile.Actor) (*reconcile.Result, error)
}

type payoutService interface {
	payoutcontrollers.Service
	payoutcontrollers.AdminService
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	Ready        map[string]controllers.Pinger
	Idempotency  middleware.IdempotencyStore
	Counters     redis.CounterStore
	Gatherer     prometheus.Gatherer
	Checkout     checkoutsvc.Service
	Reconciler   reconciler
	Orders       orders.Service
	Invoices     invoices.Service
	Payouts      payoutService
	Onboarding   connectcontrollers.Service
	Webhooks     webhookcontrollers.StripeWebhookService
	StripeClient webhookcontrollers.SigningClient
	WebhookGuard webhookcontrollers.Guard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy(
		"writes",
		cfg.RateLimit.Window,
		cfg.RateLimit.PerIP,
		cfg.RateLimit.PerUser,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, deps.StripeClient, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.RateLimit(writePolicy, deps.Counters, logg)).Post("/", controllers.Checkout(deps.Checkout, logg))
			r.Post("/confirm", controllers.ConfirmCheckout(deps.Reconciler, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Reconciler, logg))
		})

		r.Get("/invoices", payoutcontrollers.Invoices(deps.Invoices, logg))

		r.Route("/payouts", func(r chi.Router) {
			r.With(middleware.RateLimit(writePolicy, deps.Counters, logg)).Post("/", payoutcontrollers.Request(deps.Payouts, logg))
			r.Get("/", payoutcontrollers.List(deps.Payouts, logg))
			r.Get("/{payoutId}", payoutcontrollers.Detail(deps.Payouts, logg))
		})

		r.Route("/connect", func(r chi.Router) {
			r.Post("/onboarding", connectcontrollers.Start(deps.Onboarding, logg))
			r.Post("/onboarding/refresh", connectcontrollers.Refresh(deps.Onboarding, logg))
			r.Get("/status", connectcontrollers.Status(deps.Onboarding, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/payees/{payeeId}/payouts", payoutcontrollers.AdminSchedule(deps.Payouts, logg))
		r.Delete("/payees/{payeeId}/hold", payoutcontrollers.AdminReleaseHold(deps.Payouts, logg))
		r.Post("/payouts/{payoutId}/retry", payoutcontrollers.AdminRetry(deps.Payouts, logg))
		r.Post("/payouts/{payoutId}/reopen", payoutcontrollers.AdminReopen(deps.Payouts, logg))
	})

	return r
}
