package reconcile

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

// Outcome is the payment result reported by the provider.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
)

func (o Outcome) target() (enums.OrderStatus, bool) {
	switch o {
	case OutcomeProcessing:
		return enums.OrderStatusProcessing, true
	case OutcomeSucceeded:
		return enums.OrderStatusSucceeded, true
	case OutcomeFailed:
		return enums.OrderStatusFailed, true
	default:
		return "", false
	}
}

// Signal is one provider notification about a checkout session.
type Signal struct {
	SessionID     string
	Outcome       Outcome
	ChargeID      string
	OrderIDHint   *uuid.UUID
	FailureReason string
}

// Result describes the order after reconciliation. A repeated delivery returns
// the same Result with AlreadyReconciled set.
type Result struct {
	OrderID           uuid.UUID         `json:"order_id"`
	PayerID           uuid.UUID         `json:"-"`
	Status            enums.OrderStatus `json:"status"`
	InvoiceID         *uuid.UUID        `json:"invoice_id,omitempty"`
	ChargeID          *string           `json:"charge_id,omitempty"`
	FailureReason     *string           `json:"failure_reason,omitempty"`
	AlreadyReconciled bool              `json:"already_reconciled"`
}

// Actor identifies who asked for a cancellation.
type Actor struct {
	UserID uuid.UUID
	System bool
}

// SystemActor is used by webhooks and scheduled sweeps.
func SystemActor() Actor {
	return Actor{System: true}
}

func (a Actor) label() string {
	if a.System {
		return "system"
	}
	return "payer"
}

func unknownSession(sessionID string) error {
	return pkgerrors.New(pkgerrors.CodeUnknownSession, "no order matches checkout session").
		WithDetails(map[string]any{"session_id": sessionID})
}

// IsUnknownSession reports whether err means the session maps to no order.
func IsUnknownSession(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeUnknownSession)
}
