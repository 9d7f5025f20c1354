package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// reasonReopened marks a failed payout whose invoices went back to the pool.
// reasonUnconfirmed prefixes a send failure the provider never confirmed or
// rejected; reasonRejected prefixes one it rejected.
const (
	reasonReopened    = "reopened"
	reasonUnconfirmed = "transfer_unconfirmed"
	reasonRejected    = "transfer_rejected"
)

// Repository persists payouts and payout holds. Status moves are conditional
// on the current status so concurrent callbacks cannot regress a payout.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByTransferID(ctx context.Context, transferID string) (*models.Payout, error)
	ListByPayee(ctx context.Context, payeeID uuid.UUID, limit int) ([]models.Payout, error)
	SetTotal(ctx context.Context, id uuid.UUID, totalCents int64) error
	UpdateStatus(ctx context.Context, update StatusUpdate) (bool, error)
	MarkReopened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	ActiveHold(ctx context.Context, payeeID uuid.UUID) (*models.PayoutHold, error)
	CreateHold(ctx context.Context, hold *models.PayoutHold) error
	ReleaseHolds(ctx context.Context, payeeID uuid.UUID, at time.Time) (int64, error)
}

// StatusUpdate moves a payout out of one of From into To.
type StatusUpdate struct {
	PayoutID          uuid.UUID
	From              []enums.PayoutStatus
	To                enums.PayoutStatus
	TransferID        *string
	FailureReason     *string
	ClearFailure      bool
	IncrementAttempts bool
	SettledAt         *time.Time
	At                time.Time
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

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.Status == "" {
		payout.Status = enums.PayoutStatusPending
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("provider_transfer_id = ?", transferID).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByPayee(ctx context.Context, payeeID uuid.UUID, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.Payout
	if err := r.db.WithContext(ctx).
		Where("payee_id = ?", payeeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetTotal(ctx context.Context, id uuid.UUID, totalCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Update("total_cents", totalCents).Error
}

func (r *repository) UpdateStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	if len(update.From) == 0 {
		return false, errors.New("at least one source status is required")
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	values := map[string]any{
		"status":     update.To,
		"updated_at": at,
	}
	if update.TransferID != nil {
		values["provider_transfer_id"] = *update.TransferID
	}
	if update.FailureReason != nil {
		values["failure_reason"] = *update.FailureReason
	} else if update.ClearFailure {
		values["failure_reason"] = nil
	}
	if update.IncrementAttempts {
		values["attempts"] = gorm.Expr("attempts + 1")
	}
	if update.SettledAt != nil {
		values["settled_at"] = *update.SettledAt
	}

	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", update.PayoutID, update.From).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkReopened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ? AND (failure_reason IS NULL OR (failure_reason <> ? AND failure_reason NOT LIKE ?))",
			id, enums.PayoutStatusFailed, reasonReopened, reasonUnconfirmed+"%").
		Updates(map[string]any{
			"failure_reason": reasonReopened,
			"total_cents":    0,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ActiveHold returns the unreleased hold for the payee, or nil.
func (r *repository) ActiveHold(ctx context.Context, payeeID uuid.UUID) (*models.PayoutHold, error) {
	var hold models.PayoutHold
	err := r.db.WithContext(ctx).
		Where("payee_id = ? AND released_at IS NULL", payeeID).
		Order("created_at ASC").
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (r *repository) CreateHold(ctx context.Context, hold *models.PayoutHold) error {
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) ReleaseHolds(ctx context.Context, payeeID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PayoutHold{}).
		Where("payee_id = ? AND released_at IS NULL", payeeID).
		Update("released_at", at)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
