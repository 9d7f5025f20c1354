package payouts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// PayoutDTO is the API view of a payout and the invoices it settles.
type PayoutDTO struct {
	ID                 uuid.UUID          `json:"id"`
	PayeeID            uuid.UUID          `json:"payee_id"`
	TotalCents         int64              `json:"total_cents"`
	Currency           string             `json:"currency"`
	Status             enums.PayoutStatus `json:"status"`
	ProviderTransferID *string            `json:"provider_transfer_id,omitempty"`
	FailureReason      *string            `json:"failure_reason,omitempty"`
	Attempts           int                `json:"attempts"`
	InvoiceIDs         []uuid.UUID        `json:"invoice_ids"`
	CreatedAt          time.Time          `json:"created_at"`
	SettledAt          *time.Time         `json:"settled_at,omitempty"`
}

func ToPayoutDTO(payout models.Payout) PayoutDTO {
	ids := payout.InvoiceIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return PayoutDTO{
		ID:                 payout.ID,
		PayeeID:            payout.PayeeID,
		TotalCents:         payout.TotalCents,
		Currency:           payout.Currency,
		Status:             payout.Status,
		ProviderTransferID: payout.ProviderTransferID,
		FailureReason:      payout.FailureReason,
		Attempts:           payout.Attempts,
		InvoiceIDs:         ids,
		CreatedAt:          payout.CreatedAt,
		SettledAt:          payout.SettledAt,
	}
}

func reopened(payout *models.Payout) bool {
	return payout.FailureReason != nil && *payout.FailureReason == reasonReopened
}

// unconfirmed reports a failed send whose transfer may still exist at the
// provider.
func unconfirmed(payout *models.Payout) bool {
	return payout.Status == enums.PayoutStatusFailed &&
		payout.FailureReason != nil &&
		strings.HasPrefix(*payout.FailureReason, reasonUnconfirmed)
}
