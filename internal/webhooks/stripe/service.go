package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gearledger-backend/internal/onboarding"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
)

type reconciler interface {
	Reconcile(ctx context.Context, signal reconcile.Signal) (*reconcile.Result, error)
	CancelExpiredSession(ctx context.Context, sessionID string, orderIDHint *uuid.UUID) (*reconcile.Result, error)
}

type accountSyncer interface {
	SyncAccount(ctx context.Context, snapshot onboarding.AccountSnapshot) error
}

type transferHandler interface {
	HandleTransferPaid(ctx context.Context, transferID string, payoutID uuid.UUID) error
	HandleTransferFailed(ctx context.Context, transferID string, payoutID uuid.UUID, reason string) error
}

type ServiceParams struct {
	Reconciler reconciler
	Onboarding accountSyncer
	Payouts    transferHandler
	Logger     *logger.Logger
	Metrics    *metrics.PaymentMetrics
}

// Service routes verified provider events to the payment domain.
type Service struct {
	reconciler reconciler
	onboarding accountSyncer
	payouts    transferHandler
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Reconciler == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	case params.Onboarding == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service required")
	case params.Payouts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout service required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		reconciler: params.Reconciler,
		onboarding: params.Onboarding,
		payouts:    params.Payouts,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// HandleEvent dispatches one event. It returns only after the resulting state
// change has committed. Unknown sessions surface as CodeUnknownSession so the
// caller can acknowledge them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	err := s.dispatch(ctx, event)
	s.metrics.ObserveWebhook(string(event.Type), webhookResult(err))
	return err
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		outcome := reconcile.OutcomeProcessing
		switch session.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			outcome = reconcile.OutcomeSucceeded
		}
		return s.reconcile(ctx, session, outcome, "")
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.reconcile(ctx, session, reconcile.OutcomeSucceeded, "")
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.reconcile(ctx, session, reconcile.OutcomeFailed, "async_payment_failed")
	case stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		_, err = s.reconciler.CancelExpiredSession(ctx, session.ID, orderHint(session.Metadata))
		return err
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account event")
		}
		return s.onboarding.SyncAccount(ctx, onboarding.AccountSnapshot{
			AccountID:        account.ID,
			DetailsSubmitted: account.DetailsSubmitted,
			PayoutsEnabled:   account.PayoutsEnabled,
		})
	case stripe.EventTypeTransferCreated, stripe.EventTypeTransferReversed:
		var transfer stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		return s.transfer(ctx, event.Type, &transfer)
	default:
		return nil
	}
}

func (s *Service) reconcile(ctx context.Context, session *stripe.CheckoutSession, outcome reconcile.Outcome, reason string) error {
	signal := reconcile.Signal{
		SessionID:     session.ID,
		Outcome:       outcome,
		OrderIDHint:   orderHint(session.Metadata),
		FailureReason: reason,
	}
	if session.PaymentIntent != nil {
		signal.ChargeID = session.PaymentIntent.ID
	}
	result, err := s.reconciler.Reconcile(ctx, signal)
	if err != nil {
		return err
	}
	if result.AlreadyReconciled {
		s.logg.Info(ctx, "checkout event replayed for reconciled order "+result.OrderID.String())
	}
	return nil
}

func (s *Service) transfer(ctx context.Context, eventType stripe.EventType, transfer *stripe.Transfer) error {
	payoutID := uuid.Nil
	if raw := transfer.Metadata[provider.MetadataPayoutID]; raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "transfer metadata payout_id is invalid")
		}
		payoutID = parsed
	}

	var err error
	if eventType == stripe.EventTypeTransferReversed {
		err = s.payouts.HandleTransferFailed(ctx, transfer.ID, payoutID, "transfer_reversed")
	} else {
		err = s.payouts.HandleTransferPaid(ctx, transfer.ID, payoutID)
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		// transfers initiated outside the payout scheduler
		s.logg.Warn(ctx, "transfer event for unknown payout "+transfer.ID)
		return nil
	}
	return err
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}

func orderHint(metadata map[string]string) *uuid.UUID {
	raw, ok := metadata[provider.MetadataOrderID]
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func webhookResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case reconcile.IsUnknownSession(err):
		return "unknown_session"
	default:
		return "error"
	}
}
