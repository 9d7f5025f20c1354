package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID                uuid.UUID          `json:"id"`
	Kind              enums.OrderKind    `json:"kind"`
	Status            enums.OrderStatus  `json:"status"`
	PayerID           uuid.UUID          `json:"payer_id"`
	PayeeID           uuid.UUID          `json:"payee_id"`
	GrossCents        int64              `json:"gross_cents"`
	Currency          string             `json:"currency"`
	ProviderSessionID *string            `json:"provider_session_id,omitempty"`
	FailureReason     *string            `json:"failure_reason,omitempty"`
	Payload           types.OrderPayload `json:"payload"`
	Invoice           *InvoiceDTO        `json:"invoice,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// InvoiceDTO is the fee split attached to a succeeded order.
type InvoiceDTO struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"order_id"`
	PayeeID          uuid.UUID  `json:"payee_id"`
	GrossCents       int64      `json:"gross_cents"`
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	PayeeNetCents    int64      `json:"payee_net_cents"`
	Currency         string     `json:"currency"`
	FeeRate          string     `json:"fee_rate"`
	PayoutID         *uuid.UUID `json:"payout_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func ToOrderDTO(order models.Order) OrderDTO {
	return OrderDTO{
		ID:                order.ID,
		Kind:              order.Kind,
		Status:            order.Status,
		PayerID:           order.PayerID,
		PayeeID:           order.PayeeID,
		GrossCents:        order.GrossCents,
		Currency:          order.Currency,
		ProviderSessionID: order.ProviderSessionID,
		FailureReason:     order.FailureReason,
		Payload:           order.Payload,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		CompletedAt:       order.CompletedAt,
	}
}

func ToInvoiceDTO(invoice models.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:               invoice.ID,
		OrderID:          invoice.OrderID,
		PayeeID:          invoice.PayeeID,
		GrossCents:       invoice.GrossCents,
		PlatformFeeCents: invoice.PlatformFeeCents,
		PayeeNetCents:    invoice.PayeeNetCents,
		Currency:         invoice.Currency,
		FeeRate:          invoice.FeeRate,
		PayoutID:         invoice.PayoutID,
		CreatedAt:        invoice.CreatedAt,
	}
}
