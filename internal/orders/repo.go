package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	if order.Version == 0 {
		order.Version = 1
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("provider_session_id = ?", sessionID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// AttachSession sets provider_session_id once. It returns false when the order
// already carries a session.
func (r *repository) AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND provider_session_id IS NULL", orderID).
		Updates(map[string]any{
			"provider_session_id": sessionID,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transition applies the status change only when the row still has the expected
// status and version. A false result means another writer got there first.
func (r *repository) Transition(ctx context.Context, input TransitionInput) (bool, error) {
	if !input.From.CanTransitionTo(input.To) {
		return false, fmt.Errorf("illegal order transition %s -> %s", input.From, input.To)
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]any{
		"status":     input.To,
		"version":    gorm.Expr("version + 1"),
		"updated_at": at,
	}
	if input.ChargeID != nil {
		updates["provider_charge_id"] = *input.ChargeID
	}
	if input.FailureReason != nil {
		updates["failure_reason"] = *input.FailureReason
	}
	if input.To.IsTerminal() {
		updates["completed_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND version = ?", input.OrderID, input.From, input.ExpectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("payer_id = ?", payerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
