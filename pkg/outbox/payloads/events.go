package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// OrderSucceededEvent is emitted when a payment settles and the invoice is written.
type OrderSucceededEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	Kind             enums.OrderKind `json:"kind"`
	PayerID          uuid.UUID       `json:"payer_id"`
	PayeeID          uuid.UUID       `json:"payee_id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	GrossCents       int64           `json:"gross_cents"`
	PlatformFeeCents int64           `json:"platform_fee_cents"`
	PayeeNetCents    int64           `json:"payee_net_cents"`
	Currency         string          `json:"currency"`
	ChargeID         string          `json:"charge_id,omitempty"`
	SucceededAt      time.Time       `json:"succeeded_at"`
}

// OrderFailedEvent is emitted when checkout or payment fails.
type OrderFailedEvent struct {
	OrderID  uuid.UUID       `json:"order_id"`
	Kind     enums.OrderKind `json:"kind"`
	PayerID  uuid.UUID       `json:"payer_id"`
	PayeeID  uuid.UUID       `json:"payee_id"`
	Reason   string          `json:"reason,omitempty"`
	FailedAt time.Time       `json:"failed_at"`
}

// OrderCancelledEvent is emitted for payer cancellations and expiry sweeps.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	Kind        enums.OrderKind `json:"kind"`
	PayerID     uuid.UUID       `json:"payer_id"`
	CancelledBy string          `json:"cancelled_by"`
	Reason      string          `json:"reason,omitempty"`
	CancelledAt time.Time       `json:"cancelled_at"`
}

// ListingBoostExtendedEvent asks the listings service to extend a boost window.
type ListingBoostExtendedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	PartID         uuid.UUID `json:"part_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	DurationDays   int       `json:"duration_days"`
	BoostExpiresAt time.Time `json:"boost_expires_at"`
}

// PartReservedEvent marks a listed part as sold to the buyer.
type PartReservedEvent struct {
	OrderID         uuid.UUID             `json:"order_id"`
	PartID          uuid.UUID             `json:"part_id"`
	BuyerID         uuid.UUID             `json:"buyer_id"`
	SellerID        uuid.UUID             `json:"seller_id"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
}

// PayeeNotifiedEvent tells the notification service a payee earned money.
type PayeeNotifiedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	PayeeID       uuid.UUID       `json:"payee_id"`
	Kind          enums.OrderKind `json:"kind"`
	PayeeNetCents int64           `json:"payee_net_cents"`
	Currency      string          `json:"currency"`
}

// PayerReceiptEvent asks the notification service to send the payer a receipt.
type PayerReceiptEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	PayerID    uuid.UUID       `json:"payer_id"`
	Kind       enums.OrderKind `json:"kind"`
	GrossCents int64           `json:"gross_cents"`
	Currency   string          `json:"currency"`
}

// PayoutStatusEvent covers payout requested, paid and failed transitions.
type PayoutStatusEvent struct {
	PayoutID           uuid.UUID          `json:"payout_id"`
	PayeeID            uuid.UUID          `json:"payee_id"`
	Status             enums.PayoutStatus `json:"status"`
	TotalCents         int64              `json:"total_cents"`
	Currency           string             `json:"currency"`
	InvoiceIDs         []uuid.UUID        `json:"invoice_ids,omitempty"`
	ProviderTransferID string             `json:"provider_transfer_id,omitempty"`
	FailureReason      string             `json:"failure_reason,omitempty"`
	Attempt            int                `json:"attempt"`
}

// PayoutHoldPlacedEvent alerts operators that payouts for a payee are frozen.
type PayoutHoldPlacedEvent struct {
	HoldID        uuid.UUID  `json:"hold_id"`
	PayeeID       uuid.UUID  `json:"payee_id"`
	PayoutID      *uuid.UUID `json:"payout_id,omitempty"`
	Reason        string     `json:"reason"`
	ExpectedCents int64      `json:"expected_cents"`
	ActualCents   int64      `json:"actual_cents"`
}

// OnboardingVerifiedEvent is emitted once a payee's connected account can receive payouts.
type OnboardingVerifiedEvent struct {
	PayeeID    uuid.UUID `json:"payee_id"`
	AccountID  string    `json:"account_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
