package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

const failureReasonProvider = "checkout_session_unavailable"

type checkoutFailer interface {
	FailCheckout(ctx context.Context, orderID uuid.UUID, reason string) (*reconcile.Result, error)
}

// CreateCheckoutInput is a payer's request to pay for one order.
type CreateCheckoutInput struct {
	Kind       enums.OrderKind
	PayerID    uuid.UUID
	PayeeID    uuid.UUID
	GrossCents int64
	Payload    types.OrderPayload
}

// CheckoutResult points the client at the hosted payment page.
type CheckoutResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	SessionID   string    `json:"session_id"`
	RedirectURL string    `json:"redirect_url"`
}

// Service starts checkouts. It never waits for settlement.
type Service interface {
	CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error)
}

type ServiceParams struct {
	Orders     orders.Repository
	Gateway    provider.Gateway
	Reconciler checkoutFailer
	Retry      provider.RetryPolicy
	Config     config.CheckoutConfig
	Currency   string
	Logger     *logger.Logger
}

type service struct {
	orders     orders.Repository
	gateway    provider.Gateway
	reconciler checkoutFailer
	retry      provider.RetryPolicy
	cfg        config.CheckoutConfig
	currency   string
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	cfg := params.Config
	if cfg.DefaultBoostDays <= 0 {
		cfg.DefaultBoostDays = 7
	}
	return &service{
		orders:     params.Orders,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		retry:      params.Retry,
		cfg:        cfg,
		currency:   currency,
		logg:       params.Logger,
	}, nil
}

func (s *service) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error) {
	if err := validate(&input, s.cfg.DefaultBoostDays); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:         uuid.New(),
		Kind:       input.Kind,
		PayerID:    input.PayerID,
		PayeeID:    input.PayeeID,
		GrossCents: input.GrossCents,
		Currency:   s.currency,
		Status:     enums.OrderStatusPending,
		Payload:    input.Payload,
		Version:    1,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	session, err := s.gateway.CreateCheckoutSession(ctx, provider.CheckoutSessionRequest{
		OrderID:        order.ID,
		IdempotencyKey: "checkout:" + order.ID.String(),
		ProductName:    productName(order.Kind, order.Payload),
		AmountCents:    order.GrossCents,
		Currency:       order.Currency,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		Metadata: map[string]string{
			provider.MetadataOrderID:   order.ID.String(),
			provider.MetadataOrderKind: string(order.Kind),
			provider.MetadataPayerID:   order.PayerID.String(),
			provider.MetadataPayeeID:   order.PayeeID.String(),
		},
	})
	if err != nil {
		return nil, s.abandon(ctx, order.ID, err)
	}
	ctx = s.logg.WithField(ctx, "session_id", session.ID)

	if err := s.attach(ctx, order.ID, session.ID); err != nil {
		return nil, s.abandon(ctx, order.ID, err)
	}

	s.logg.Info(ctx, "checkout session created")
	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

func (s *service) attach(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	ok, err := s.orders.AttachSession(ctx, orderID, sessionID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// a webhook carrying the order hint may have attached the same session already
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if current.ProviderSessionID != nil && *current.ProviderSessionID == sessionID {
		return nil
	}
	return errors.New("order already bound to a different session")
}

// abandon fails the pending order and reports the provider as unavailable.
func (s *service) abandon(ctx context.Context, orderID uuid.UUID, cause error) error {
	s.logg.Error(ctx, "checkout session setup failed", cause)

	failErr := s.retry.Do(ctx, retryableBookkeeping, func(ctx context.Context) error {
		_, err := s.reconciler.FailCheckout(ctx, orderID, failureReasonProvider)
		return err
	})
	if failErr != nil {
		// the checkout-expiry sweep cancels the order later
		s.logg.Error(ctx, "marking checkout failed", failErr)
	}

	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "payment provider unavailable").
		WithDetails(map[string]any{"order_id": orderID})
}

func retryableBookkeeping(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeInternal)
}
