package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) (bool, error)
	Transition(ctx context.Context, input TransitionInput) (bool, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Order, error)
}

// TransitionInput describes a version-checked status change.
type TransitionInput struct {
	OrderID         uuid.UUID
	ExpectedVersion int
	From            enums.OrderStatus
	To              enums.OrderStatus
	ChargeID        *string
	FailureReason   *string
	At              time.Time
}
