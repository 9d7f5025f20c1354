package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// ConnectedAccount tracks a payee's provider account and its verification state.
type ConnectedAccount struct {
	PayeeID           uuid.UUID              `gorm:"column:payee_id;type:uuid;primaryKey"`
	ProviderAccountID string                 `gorm:"column:provider_account_id;not null;uniqueIndex"`
	Status            enums.OnboardingStatus `gorm:"column:status;type:onboarding_status;not null;default:'pending_verification'"`
	DetailsSubmitted  bool                   `gorm:"column:details_submitted;not null;default:false"`
	PayoutsEnabled    bool                   `gorm:"column:payouts_enabled;not null;default:false"`
	Email             string                 `gorm:"column:email"`
	Country           string                 `gorm:"column:country"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	VerifiedAt        *time.Time             `gorm:"column:verified_at"`
}
