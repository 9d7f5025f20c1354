package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// Payout groups claimed invoices into a single transfer to a payee.
type Payout struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PayeeID            uuid.UUID          `gorm:"column:payee_id;type:uuid;not null;index"`
	TotalCents         int64              `gorm:"column:total_cents;not null;default:0"`
	Currency           string             `gorm:"column:currency;not null;default:'usd'"`
	Status             enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	ProviderTransferID *string            `gorm:"column:provider_transfer_id;uniqueIndex"`
	FailureReason      *string            `gorm:"column:failure_reason"`
	Attempts           int                `gorm:"column:attempts;not null;default:0"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	SettledAt          *time.Time         `gorm:"column:settled_at"`

	InvoiceIDs []uuid.UUID `gorm:"-"`
}
