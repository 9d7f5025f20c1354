package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/gearledger-backend/api/responses"
	stripewebhook "github.com/angelmondragon/gearledger-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const maxPayloadBytes = int64(65536)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type Guard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// SigningClient supplies the webhook secret and the mode events must match.
type SigningClient interface {
	SigningSecret() string
	Livemode() bool
}

// StripeWebhook verifies and dispatches provider events. A 2xx is written only
// after the dispatch committed, or for an event an earlier delivery already
// committed. A delivery racing one still in flight gets 409 so the provider
// tries again later.
func StripeWebhook(svc StripeWebhookService, client SigningClient, guard Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
		}
		// acknowledged so the provider stops redelivering to the wrong deployment
		if event.Livemode != client.Livemode() {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "event_livemode", event.Livemode), "stripe event mode does not match deployment, ignoring")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		state, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		switch state {
		case stripewebhook.Done:
			if logg != nil {
				logg.Info(ctx, "stripe event already processed")
			}
			responses.WriteSuccess(w, nil)
			return
		case stripewebhook.InFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "stripe event is being processed by another delivery"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if !pkgerrors.IsCode(err, pkgerrors.CodeUnknownSession) {
				if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
					logg.Error(ctx, "release webhook guard", releaseErr)
				}
				responses.WriteError(ctx, logg, w, serverError(err))
				return
			}
			if logg != nil {
				logg.Warn(ctx, "stripe event references unknown checkout session")
			}
		}
		// the change is committed; a failed marker write only means a later
		// redelivery runs the idempotent handlers again
		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "complete webhook guard", err)
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

// serverError keeps the provider retrying: anything that is not already a 5xx
// is reported as internal.
func serverError(err error) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code().ServerSide() {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook processing failed")
}
