package onboarding

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// Repository persists connected accounts keyed by payee.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.ConnectedAccount) error
	FindByPayeeID(ctx context.Context, payeeID uuid.UUID) (*models.ConnectedAccount, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.ConnectedAccount, error)
	UpdateFlags(ctx context.Context, payeeID uuid.UUID, updates map[string]any) error
	ListPayablePayeeIDs(ctx context.Context, payeeIDs []uuid.UUID) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.ConnectedAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByPayeeID(ctx context.Context, payeeID uuid.UUID) (*models.ConnectedAccount, error) {
	var account models.ConnectedAccount
	if err := r.db.WithContext(ctx).
		Where("payee_id = ?", payeeID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByAccountID(ctx context.Context, accountID string) (*models.ConnectedAccount, error) {
	var account models.ConnectedAccount
	if err := r.db.WithContext(ctx).
		Where("provider_account_id = ?", accountID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateFlags(ctx context.Context, payeeID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ConnectedAccount{}).
		Where("payee_id = ?", payeeID).
		Updates(updates).Error
}

func (r *repository) ListPayablePayeeIDs(ctx context.Context, payeeIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(payeeIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ConnectedAccount{}).
		Where("payee_id IN ? AND status = ? AND payouts_enabled = ?", payeeIDs, enums.OnboardingStatusVerified, true).
		Pluck("payee_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
