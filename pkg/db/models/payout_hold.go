package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutHold blocks payouts to a payee until an operator releases it.
type PayoutHold struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	PayeeID       uuid.UUID  `gorm:"column:payee_id;type:uuid;not null;index"`
	PayoutID      *uuid.UUID `gorm:"column:payout_id;type:uuid"`
	Reason        string     `gorm:"column:reason;not null"`
	ExpectedCents int64      `gorm:"column:expected_cents;not null;default:0"`
	ActualCents   int64      `gorm:"column:actual_cents;not null;default:0"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	ReleasedAt    *time.Time `gorm:"column:released_at"`
}
