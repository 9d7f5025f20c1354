package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/internal/fees"
	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/ledger"
	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// errVersionConflict signals that another writer moved the order first.
var errVersionConflict = errors.New("order version changed")

type ServiceParams struct {
	Orders            orders.Repository
	Invoices          invoices.Repository
	Ledger            ledger.Service
	Outbox            outbox.Emitter
	Rates             fees.RateBook
	Effects           *Effects
	Gateway           provider.Gateway
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.PaymentMetrics
	ExpireOnCancel    bool
	Clock             func() time.Time
}

// Service owns every order status transition.
type Service struct {
	orders         orders.Repository
	invoices       invoices.Repository
	ledger         ledger.Service
	outbox         outbox.Emitter
	rates          fees.RateBook
	effects        *Effects
	gateway        provider.Gateway
	tx             txRunner
	logg           *logger.Logger
	metrics        *metrics.PaymentMetrics
	expireOnCancel bool
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	case params.Invoices == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoices repository required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	effects := params.Effects
	if effects == nil {
		effects = DefaultEffects(params.Outbox)
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		orders:         params.Orders,
		invoices:       params.Invoices,
		ledger:         params.Ledger,
		outbox:         params.Outbox,
		rates:          params.Rates,
		effects:        effects,
		gateway:        params.Gateway,
		tx:             params.TransactionRunner,
		logg:           params.Logger,
		metrics:        params.Metrics,
		expireOnCancel: params.ExpireOnCancel,
		now:            clock,
	}, nil
}

// change is one requested transition plus the facts recorded with it.
type change struct {
	to          enums.OrderStatus
	chargeID    string
	reason      string
	cancelledBy string
	actor       *outbox.ActorRef
}

// Reconcile applies a provider signal to the order behind its session.
func (s *Service) Reconcile(ctx context.Context, signal Signal) (*Result, error) {
	target, ok := signal.Outcome.target()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown reconcile outcome").
			WithDetails(map[string]any{"outcome": signal.Outcome})
	}
	if signal.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	ctx = s.logg.WithField(ctx, "session_id", signal.SessionID)

	order, err := s.lookup(ctx, signal)
	if err != nil {
		s.metrics.ObserveReconcile(string(signal.Outcome), resultLabel(nil, err))
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	// A repeated processing signal, or any signal after a terminal state, is a replay.
	if order.Status.IsTerminal() || !order.Status.CanTransitionTo(target) {
		result, err := s.recorded(ctx, order)
		s.metrics.ObserveReconcile(string(signal.Outcome), resultLabel(result, err))
		return result, err
	}

	result, err := s.transition(ctx, order, change{
		to:       target,
		chargeID: signal.ChargeID,
		reason:   signal.FailureReason,
	})
	s.metrics.ObserveReconcile(string(signal.Outcome), resultLabel(result, err))
	if err == nil && !result.AlreadyReconciled {
		s.logg.Info(ctx, "order reconciled to "+string(result.Status))
	}
	return result, err
}

func resultLabel(result *Result, err error) string {
	switch {
	case err == nil && result != nil && result.AlreadyReconciled:
		return "already_reconciled"
	case err == nil:
		return "applied"
	case IsUnknownSession(err):
		return "unknown_session"
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return "conflict"
	default:
		return "error"
	}
}

// FailCheckout marks a pending order failed when its checkout session could
// not be created or attached.
func (s *Service) FailCheckout(ctx context.Context, orderID uuid.UUID, reason string) (*Result, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.Status.IsTerminal() {
		return s.recorded(ctx, order)
	}
	if order.Status != enums.OrderStatusPending {
		return nil, stateConflict(order, enums.OrderStatusFailed)
	}
	return s.transition(ctx, order, change{to: enums.OrderStatusFailed, reason: reason})
}

// Cancel moves a pending order to cancelled on behalf of its payer or the system.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (*Result, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.System && actor.UserID != order.PayerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	result, err := s.cancel(ctx, order, actor, "cancelled_by_"+actor.label())
	if err != nil || result.AlreadyReconciled {
		return result, err
	}

	if s.expireOnCancel && order.ProviderSessionID != nil {
		if expireErr := s.gateway.ExpireCheckoutSession(ctx, *order.ProviderSessionID); expireErr != nil {
			s.logg.Warn(ctx, "expire checkout session after cancel failed: "+expireErr.Error())
		}
	}
	return result, nil
}

// CancelExpiredSession handles the provider telling us a session timed out.
func (s *Service) CancelExpiredSession(ctx context.Context, sessionID string, orderIDHint *uuid.UUID) (*Result, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	order, err := s.lookup(ctx, Signal{SessionID: sessionID, OrderIDHint: orderIDHint})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.Status == enums.OrderStatusProcessing {
		// async payment still settling; the async result decides
		return s.recorded(ctx, order)
	}
	return s.cancel(ctx, order, SystemActor(), "session_expired")
}

func (s *Service) cancel(ctx context.Context, order *models.Order, actor Actor, reason string) (*Result, error) {
	if order.Status.IsTerminal() {
		if order.Status == enums.OrderStatusCancelled {
			return s.recorded(ctx, order)
		}
		return nil, stateConflict(order, enums.OrderStatusCancelled)
	}
	if order.Status != enums.OrderStatusPending {
		return nil, stateConflict(order, enums.OrderStatusCancelled)
	}
	ref := outbox.SystemActor()
	if !actor.System {
		ref = &outbox.ActorRef{UserID: actor.UserID, Role: "payer"}
	}
	return s.transition(ctx, order, change{
		to:          enums.OrderStatusCancelled,
		reason:      reason,
		cancelledBy: actor.label(),
		actor:       ref,
	})
}

// Confirm asks the provider for the session state and reconciles it. It backs
// the checkout success page. An open session changes nothing and an expired
// one is cancelled exactly as the expiry webhook would.
func (s *Service) Confirm(ctx context.Context, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}

	var hint *uuid.UUID
	if id, ok := session.OrderID(); ok {
		hint = &id
	}
	outcome, ok := OutcomeForSession(session)
	switch {
	case ok:
		return s.Reconcile(ctx, Signal{
			SessionID:   session.ID,
			ChargeID:    session.PaymentIntentID,
			Outcome:     outcome,
			OrderIDHint: hint,
		})
	case session.Status == provider.SessionStatusExpired:
		return s.CancelExpiredSession(ctx, session.ID, hint)
	default:
		order, err := s.lookup(ctx, Signal{SessionID: session.ID, OrderIDHint: hint})
		if err != nil {
			return nil, err
		}
		result, err := s.recorded(ctx, order)
		if err != nil {
			return nil, err
		}
		result.AlreadyReconciled = order.Status != enums.OrderStatusPending
		return result, nil
	}
}

// PayerForSession returns the payer of the order behind sessionID without
// contacting the provider.
func (s *Service) PayerForSession(ctx context.Context, sessionID string) (uuid.UUID, error) {
	if sessionID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	order, err := s.lookup(ctx, Signal{SessionID: sessionID})
	if err != nil {
		return uuid.Nil, err
	}
	return order.PayerID, nil
}

// OutcomeForSession maps provider session state onto a payment outcome. It
// reports false when the session carries none yet (still open) or will never
// carry one (expired).
func OutcomeForSession(session provider.CheckoutSession) (Outcome, bool) {
	switch {
	case session.PaymentStatus == provider.PaymentStatusPaid,
		session.PaymentStatus == provider.PaymentStatusNoPaymentRequired:
		return OutcomeSucceeded, true
	case session.Status == provider.SessionStatusComplete:
		// completed with an async method that has not settled
		return OutcomeProcessing, true
	default:
		return "", false
	}
}

func (s *Service) lookup(ctx context.Context, signal Signal) (*models.Order, error) {
	order, err := s.orders.FindBySessionID(ctx, signal.SessionID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order by session")
	}
	if signal.OrderIDHint == nil {
		return nil, unknownSession(signal.SessionID)
	}

	order, err = s.orders.FindByID(ctx, *signal.OrderIDHint)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unknownSession(signal.SessionID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order by hint")
	}
	if order.ProviderSessionID != nil {
		if *order.ProviderSessionID == signal.SessionID {
			return order, nil
		}
		return nil, unknownSession(signal.SessionID)
	}

	// the webhook beat the checkout call that would have attached the session
	if _, err := s.orders.AttachSession(ctx, order.ID, signal.SessionID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach session from hint")
	}
	order, err = s.orders.FindBySessionID(ctx, signal.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unknownSession(signal.SessionID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	return order, nil
}

func (s *Service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// transition runs the version-checked update and its side effects atomically.
// Losing the version race reloads the order and reports the winner's result.
func (s *Service) transition(ctx context.Context, order *models.Order, ch change) (*Result, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.applyTx(ctx, tx, *order, ch)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, errVersionConflict) {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile order")
	}

	current, loadErr := s.load(ctx, order.ID)
	if loadErr != nil {
		return nil, loadErr
	}
	if current.Status.IsTerminal() {
		return s.recorded(ctx, current)
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently").
		WithDetails(map[string]any{"order_id": order.ID, "retryable": true})
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, order models.Order, ch change) (*Result, error) {
	now := s.now()
	input := orders.TransitionInput{
		OrderID:         order.ID,
		ExpectedVersion: order.Version,
		From:            order.Status,
		To:              ch.to,
		At:              now,
	}
	if ch.chargeID != "" && ch.to == enums.OrderStatusSucceeded {
		input.ChargeID = &ch.chargeID
	}
	if ch.reason != "" && ch.to != enums.OrderStatusSucceeded {
		input.FailureReason = &ch.reason
	}

	ok, err := s.orders.WithTx(tx).Transition(ctx, input)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errVersionConflict
	}

	order.Status = ch.to
	order.Version++
	order.ProviderChargeID = input.ChargeID
	order.FailureReason = input.FailureReason

	result := &Result{
		OrderID:       order.ID,
		PayerID:       order.PayerID,
		Status:        order.Status,
		ChargeID:      order.ProviderChargeID,
		FailureReason: order.FailureReason,
	}

	actor := ch.actor
	if actor == nil {
		actor = outbox.SystemActor()
	}
	orderID := order.ID

	switch ch.to {
	case enums.OrderStatusSucceeded:
		invoice, err := s.settle(ctx, tx, order, now, actor)
		if err != nil {
			return nil, err
		}
		result.InvoiceID = &invoice.ID
	case enums.OrderStatusFailed:
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			OrderID:     &orderID,
			PayeeID:     order.PayeeID,
			Type:        enums.LedgerEventTypeOrderFailed,
			AmountCents: order.GrossCents,
			Currency:    order.Currency,
			Metadata:    map[string]string{"reason": ch.reason},
		}); err != nil {
			return nil, err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderFailedEvent{
				OrderID:  order.ID,
				Kind:     order.Kind,
				PayerID:  order.PayerID,
				PayeeID:  order.PayeeID,
				Reason:   ch.reason,
				FailedAt: now,
			},
		}); err != nil {
			return nil, err
		}
	case enums.OrderStatusCancelled:
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			OrderID:     &orderID,
			PayeeID:     order.PayeeID,
			Type:        enums.LedgerEventTypeOrderCancelled,
			AmountCents: order.GrossCents,
			Currency:    order.Currency,
			Metadata:    map[string]string{"cancelled_by": ch.cancelledBy, "reason": ch.reason},
		}); err != nil {
			return nil, err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				Kind:        order.Kind,
				PayerID:     order.PayerID,
				CancelledBy: ch.cancelledBy,
				Reason:      ch.reason,
				CancelledAt: now,
			},
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// settle writes the invoice, runs kind effects and records the payment.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, order models.Order, now time.Time, actor *outbox.ActorRef) (*models.Invoice, error) {
	split := s.rates.SplitFor(order.Kind, order.GrossCents)
	invoice := &models.Invoice{
		ID:               uuid.New(),
		OrderID:          order.ID,
		PayeeID:          order.PayeeID,
		GrossCents:       split.Gross,
		PlatformFeeCents: split.PlatformFee,
		PayeeNetCents:    split.PayeeNet,
		Currency:         order.Currency,
		FeeRate:          split.Rate.String(),
		CreatedAt:        now,
	}
	if err := s.invoices.WithTx(tx).Create(ctx, invoice); err != nil {
		return nil, err
	}

	if err := s.effects.Run(ctx, EffectContext{Tx: tx, Order: order, Invoice: *invoice, At: now}); err != nil {
		return nil, err
	}

	orderID := order.ID
	chargeID := ""
	if order.ProviderChargeID != nil {
		chargeID = *order.ProviderChargeID
	}
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
		OrderID:     &orderID,
		PayeeID:     order.PayeeID,
		Type:        enums.LedgerEventTypeOrderPaid,
		AmountCents: order.GrossCents,
		Currency:    order.Currency,
		Metadata: map[string]any{
			"charge_id":          chargeID,
			"invoice_id":         invoice.ID,
			"platform_fee_cents": invoice.PlatformFeeCents,
			"payee_net_cents":    invoice.PayeeNetCents,
			"fee_rate":           invoice.FeeRate,
		},
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderSucceeded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.OrderSucceededEvent{
			OrderID:          order.ID,
			Kind:             order.Kind,
			PayerID:          order.PayerID,
			PayeeID:          order.PayeeID,
			InvoiceID:        invoice.ID,
			GrossCents:       invoice.GrossCents,
			PlatformFeeCents: invoice.PlatformFeeCents,
			PayeeNetCents:    invoice.PayeeNetCents,
			Currency:         invoice.Currency,
			ChargeID:         chargeID,
			SucceededAt:      now,
		},
	}); err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayerReceipt,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.PayerReceiptEvent{
			OrderID:    order.ID,
			InvoiceID:  invoice.ID,
			PayerID:    order.PayerID,
			Kind:       order.Kind,
			GrossCents: invoice.GrossCents,
			Currency:   invoice.Currency,
		},
	}); err != nil {
		return nil, err
	}
	return invoice, nil
}

// recorded rebuilds the result a previous reconciliation produced.
func (s *Service) recorded(ctx context.Context, order *models.Order) (*Result, error) {
	result := &Result{
		OrderID:           order.ID,
		PayerID:           order.PayerID,
		Status:            order.Status,
		ChargeID:          order.ProviderChargeID,
		FailureReason:     order.FailureReason,
		AlreadyReconciled: true,
	}
	if order.Status == enums.OrderStatusSucceeded {
		invoice, err := s.invoices.FindByOrderID(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice for reconciled order")
		}
		result.InvoiceID = &invoice.ID
	}
	return result, nil
}

func stateConflict(order *models.Order, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move to "+string(to)).
		WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
}
