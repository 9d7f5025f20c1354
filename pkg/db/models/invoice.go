package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is the immutable fee split recorded when an order succeeds.
type Invoice struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PayeeID          uuid.UUID  `gorm:"column:payee_id;type:uuid;not null;index"`
	GrossCents       int64      `gorm:"column:gross_cents;not null"`
	PlatformFeeCents int64      `gorm:"column:platform_fee_cents;not null"`
	PayeeNetCents    int64      `gorm:"column:payee_net_cents;not null"`
	Currency         string     `gorm:"column:currency;not null;default:'usd'"`
	FeeRate          string     `gorm:"column:fee_rate;not null"`
	PayoutID         *uuid.UUID `gorm:"column:payout_id;type:uuid;index"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}
