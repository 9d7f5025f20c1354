package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// Order is a single purchase attempt moving through the checkout lifecycle.
type Order struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Kind              enums.OrderKind    `gorm:"column:kind;type:order_kind;not null"`
	PayerID           uuid.UUID          `gorm:"column:payer_id;type:uuid;not null"`
	PayeeID           uuid.UUID          `gorm:"column:payee_id;type:uuid;not null"`
	GrossCents        int64              `gorm:"column:gross_cents;not null"`
	Currency          string             `gorm:"column:currency;not null;default:'usd'"`
	Status            enums.OrderStatus  `gorm:"column:status;type:order_status;not null;default:'pending'"`
	ProviderSessionID *string            `gorm:"column:provider_session_id;uniqueIndex"`
	ProviderChargeID  *string            `gorm:"column:provider_charge_id"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	Payload           types.OrderPayload `gorm:"column:payload;type:jsonb;serializer:json;not null"`
	Version           int                `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt       *time.Time         `gorm:"column:completed_at"`
}
