package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// Service records the immutable money audit trail. Writes join the caller's
// transaction so the entry commits with the state change it describes.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.LedgerEvent, error)
	HasOrderEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	PayoutHistory(ctx context.Context, payoutID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a ledger event requires.
type RecordInput struct {
	OrderID     *uuid.UUID            `json:"order_id,omitempty"`
	PayoutID    *uuid.UUID            `json:"payout_id,omitempty"`
	PayeeID     uuid.UUID             `json:"payee_id"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int64                 `json:"amount_cents"`
	Currency    string                `json:"currency"`
	Metadata    any                   `json:"metadata,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.LedgerEvent, error) {
	if input.OrderID == nil && input.PayoutID == nil {
		return nil, fmt.Errorf("order id or payout id is required")
	}
	if input.PayeeID == uuid.Nil {
		return nil, fmt.Errorf("payee id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountCents < 0 {
		return nil, fmt.Errorf("ledger amount must be non-negative")
	}
	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	var metadata json.RawMessage
	if input.Metadata != nil {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode ledger metadata: %w", err)
		}
		metadata = raw
	}

	event := &models.LedgerEvent{
		OrderID:     input.OrderID,
		PayoutID:    input.PayoutID,
		PayeeID:     input.PayeeID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
		Currency:    currency,
		Metadata:    metadata,
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasOrderEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	return s.repo.Exists(ctx, Filter{OrderID: orderID, Type: eventType})
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return s.repo.Find(ctx, Filter{OrderID: orderID})
}

func (s *service) PayoutHistory(ctx context.Context, payoutID uuid.UUID) ([]models.LedgerEvent, error) {
	return s.repo.Find(ctx, Filter{PayoutID: payoutID})
}
