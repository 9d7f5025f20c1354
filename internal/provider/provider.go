package provider

import (
	"context"

	"github.com/google/uuid"
)

// Gateway is the payment provider surface used by checkout, payouts and onboarding.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
	CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error)
	CreateConnectedAccount(ctx context.Context, req AccountRequest) (ConnectedAccount, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
}

// Metadata keys attached to provider objects so callbacks can be routed back.
const (
	MetadataOrderID   = "order_id"
	MetadataOrderKind = "order_kind"
	MetadataPayerID   = "payer_id"
	MetadataPayeeID   = "payee_id"
	MetadataPayoutID  = "payout_id"
)

type CheckoutSessionRequest struct {
	OrderID        uuid.UUID
	IdempotencyKey string
	ProductName    string
	AmountCents    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
}

type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

type CheckoutSession struct {
	ID              string
	URL             string
	Status          SessionStatus
	PaymentStatus   PaymentStatus
	PaymentIntentID string
	AmountTotal     int64
	Metadata        map[string]string
}

// OrderID parses the order id stored in the session metadata.
func (s CheckoutSession) OrderID() (uuid.UUID, bool) {
	raw, ok := s.Metadata[MetadataOrderID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type TransferRequest struct {
	IdempotencyKey       string
	AmountCents          int64
	Currency             string
	DestinationAccountID string
	Metadata             map[string]string
}

type Transfer struct {
	ID          string
	AmountCents int64
	Destination string
	Reversed    bool
}

type AccountRequest struct {
	IdempotencyKey string
	PayeeID        uuid.UUID
	Email          string
	Country        string
	BusinessType   string
}

type ConnectedAccount struct {
	ID               string
	DetailsSubmitted bool
	PayoutsEnabled   bool
	ChargesEnabled   bool
}
