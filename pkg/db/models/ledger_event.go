package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// LedgerEvent records an immutable money lifecycle event for an order or payout.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	PayoutID    *uuid.UUID            `gorm:"column:payout_id;type:uuid;index"`
	PayeeID     uuid.UUID             `gorm:"column:payee_id;type:uuid;not null"`
	Type        enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Currency    string                `gorm:"column:currency;not null;default:'usd'"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
