package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gearledger-backend/internal/onboarding"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

type stubReconciler struct {
	signals []reconcile.Signal
	expired []string
	hints   []*uuid.UUID
	err     error
}

func (s *stubReconciler) Reconcile(_ context.Context, signal reconcile.Signal) (*reconcile.Result, error) {
	s.signals = append(s.signals, signal)
	if s.err != nil {
		return nil, s.err
	}
	return &reconcile.Result{OrderID: uuid.New(), Status: enums.OrderStatusSucceeded}, nil
}

func (s *stubReconciler) CancelExpiredSession(_ context.Context, sessionID string, hint *uuid.UUID) (*reconcile.Result, error) {
	s.expired = append(s.expired, sessionID)
	s.hints = append(s.hints, hint)
	return &reconcile.Result{Status: enums.OrderStatusCancelled}, s.err
}

type stubOnboarding struct {
	snapshots []onboarding.AccountSnapshot
}

func (s *stubOnboarding) SyncAccount(_ context.Context, snapshot onboarding.AccountSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

type transferCall struct {
	transferID string
	payoutID   uuid.UUID
	failed     bool
	reason     string
}

type stubPayouts struct {
	calls []transferCall
	err   error
}

func (s *stubPayouts) HandleTransferPaid(_ context.Context, transferID string, payoutID uuid.UUID) error {
	s.calls = append(s.calls, transferCall{transferID: transferID, payoutID: payoutID})
	return s.err
}

func (s *stubPayouts) HandleTransferFailed(_ context.Context, transferID string, payoutID uuid.UUID, reason string) error {
	s.calls = append(s.calls, transferCall{transferID: transferID, payoutID: payoutID, failed: true, reason: reason})
	return s.err
}

type harness struct {
	svc        *Service
	reconciler *stubReconciler
	onboarding *stubOnboarding
	payouts    *stubPayouts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reconciler: &stubReconciler{},
		onboarding: &stubOnboarding{},
		payouts:    &stubPayouts{},
	}
	svc, err := NewService(ServiceParams{
		Reconciler: h.reconciler,
		Onboarding: h.onboarding,
		Payouts:    h.payouts,
		Logger:     logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func event(t *testing.T, eventType stripe.EventType, object map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestCheckoutCompletedPaidReconcilesSucceeded(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()

	err := h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_1",
		"metadata":       map[string]string{"order_id": orderID.String()},
	}))
	require.NoError(t, err)

	require.Len(t, h.reconciler.signals, 1)
	signal := h.reconciler.signals[0]
	assert.Equal(t, "cs_1", signal.SessionID)
	assert.Equal(t, reconcile.OutcomeSucceeded, signal.Outcome)
	assert.Equal(t, "pi_1", signal.ChargeID)
	require.NotNil(t, signal.OrderIDHint)
	assert.Equal(t, orderID, *signal.OrderIDHint)
}

func TestCheckoutSessionOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		eventType stripe.EventType
		status    string
		want      reconcile.Outcome
	}{
		{name: "completed unpaid", eventType: stripe.EventTypeCheckoutSessionCompleted, status: "unpaid", want: reconcile.OutcomeProcessing},
		{name: "completed free", eventType: stripe.EventTypeCheckoutSessionCompleted, status: "no_payment_required", want: reconcile.OutcomeSucceeded},
		{name: "async succeeded", eventType: stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, status: "paid", want: reconcile.OutcomeSucceeded},
		{name: "async failed", eventType: stripe.EventTypeCheckoutSessionAsyncPaymentFailed, status: "unpaid", want: reconcile.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.svc.HandleEvent(context.Background(), event(t, tt.eventType, map[string]any{
				"id":             "cs_x",
				"payment_status": tt.status,
			})))
			require.Len(t, h.reconciler.signals, 1)
			assert.Equal(t, tt.want, h.reconciler.signals[0].Outcome)
			assert.Nil(t, h.reconciler.signals[0].OrderIDHint)
		})
	}
}

func TestCheckoutExpiredCancels(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeCheckoutSessionExpired, map[string]any{
		"id":       "cs_old",
		"metadata": map[string]string{"order_id": "not-a-uuid"},
	})))
	assert.Equal(t, []string{"cs_old"}, h.reconciler.expired)
	assert.Nil(t, h.reconciler.hints[0])
}

func TestUnknownSessionPropagates(t *testing.T) {
	h := newHarness(t)
	h.reconciler.err = pkgerrors.New(pkgerrors.CodeUnknownSession, "checkout session not recognized")

	err := h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_missing", "payment_status": "paid",
	}))
	require.Error(t, err)
	assert.True(t, reconcile.IsUnknownSession(err))
	assert.Equal(t, "unknown_session", webhookResult(err))
}

func TestAccountUpdatedSyncsOnboarding(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeAccountUpdated, map[string]any{
		"id":                "acct_1",
		"object":            "account",
		"details_submitted": true,
		"payouts_enabled":   true,
	})))
	require.Len(t, h.onboarding.snapshots, 1)
	assert.Equal(t, onboarding.AccountSnapshot{AccountID: "acct_1", DetailsSubmitted: true, PayoutsEnabled: true}, h.onboarding.snapshots[0])
}

func TestTransferEvents(t *testing.T) {
	h := newHarness(t)
	payoutID := uuid.New()
	ctx := context.Background()

	require.NoError(t, h.svc.HandleEvent(ctx, event(t, stripe.EventTypeTransferCreated, map[string]any{
		"id":       "tr_1",
		"object":   "transfer",
		"metadata": map[string]string{"payout_id": payoutID.String()},
	})))
	require.NoError(t, h.svc.HandleEvent(ctx, event(t, stripe.EventTypeTransferReversed, map[string]any{
		"id":     "tr_2",
		"object": "transfer",
	})))

	require.Len(t, h.payouts.calls, 2)
	assert.Equal(t, transferCall{transferID: "tr_1", payoutID: payoutID}, h.payouts.calls[0])
	assert.Equal(t, transferCall{transferID: "tr_2", payoutID: uuid.Nil, failed: true, reason: "transfer_reversed"}, h.payouts.calls[1])
}

func TestTransferForUnknownPayoutIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.payouts.err = pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	require.NoError(t, h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeTransferCreated, map[string]any{"id": "tr_other"})))
}

func TestUnhandledEventIsIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event(t, stripe.EventTypeCustomerCreated, map[string]any{"id": "cus_1"})))
	assert.Empty(t, h.reconciler.signals)
}

func TestEventGuardLifecycle(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewEventGuard(store, time.Minute, time.Hour, "stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	state, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, InFlight, state, "a concurrent delivery must not look finished")

	require.NoError(t, guard.Release(ctx, "evt_1"))
	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, Done, state)
}

func TestEventGuardSurvivesCancelledRequest(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewEventGuard(store, time.Minute, time.Hour, "stripe-webhook")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	cancel()
	require.NoError(t, guard.Release(ctx, "evt_2"))

	state, err := guard.Claim(context.Background(), "evt_2")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestNewEventGuardValidates(t *testing.T) {
	store := newMemoryStore()
	_, err := NewEventGuard(store, 0, time.Hour, "scope")
	assert.Error(t, err)
	_, err = NewEventGuard(store, time.Hour, time.Minute, "scope")
	assert.Error(t, err)
	_, err = NewEventGuard(nil, time.Minute, time.Hour, "scope")
	assert.Error(t, err)
}
