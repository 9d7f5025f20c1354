package invoices

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
)

// Repository persists invoices. Money columns are written once on insert and
// never updated; only the payout claim moves.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	ListByPayee(ctx context.Context, payeeID uuid.UUID, filter ListFilter) ([]models.Invoice, error)
	ListUnclaimed(ctx context.Context, payeeID uuid.UUID, limit int) ([]models.Invoice, error)
	ListPayeesWithUnclaimed(ctx context.Context, limit int) ([]uuid.UUID, error)
	Claim(ctx context.Context, payoutID uuid.UUID, invoiceIDs []uuid.UUID) (int64, error)
	SumByPayout(ctx context.Context, payoutID uuid.UUID) (int64, int64, error)
	IDsByPayout(ctx context.Context, payoutID uuid.UUID) ([]uuid.UUID, error)
	Release(ctx context.Context, payoutID uuid.UUID) (int64, error)
}

// ListFilter narrows ListByPayee. Cursor continues a previous page.
type ListFilter struct {
	Unclaimed bool
	Limit     int
	Cursor    *pagination.Cursor
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

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice == nil {
		return fmt.Errorf("invoice is required")
	}
	if invoice.PlatformFeeCents+invoice.PayeeNetCents != invoice.GrossCents {
		return fmt.Errorf("invoice split %d + %d does not equal gross %d", invoice.PlatformFeeCents, invoice.PayeeNetCents, invoice.GrossCents)
	}
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListByPayee(ctx context.Context, payeeID uuid.UUID, filter ListFilter) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).Where("payee_id = ?", payeeID)
	if filter.Unclaimed {
		query = query.Where("payout_id IS NULL")
	}
	var rows []models.Invoice
	if err := query.Scopes(pagination.Keyset(filter.Cursor, filter.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnclaimed returns the payee's unclaimed invoices, payable ones first.
// Zero-net rows are included so they settle with the next payout instead of
// staying unclaimed forever.
func (r *repository) ListUnclaimed(ctx context.Context, payeeID uuid.UUID, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("payee_id = ? AND payout_id IS NULL", payeeID).
		Order("CASE WHEN payee_net_cents > 0 THEN 0 ELSE 1 END, created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPayeesWithUnclaimed returns payees owed money. A payee holding only
// zero-net invoices is owed nothing and is skipped.
func (r *repository) ListPayeesWithUnclaimed(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 200
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("payout_id IS NULL AND payee_net_cents > 0").
		Distinct("payee_id").
		Limit(limit).
		Pluck("payee_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Claim links unclaimed invoices to the payout. Rows another payout already
// took are skipped, so the returned count may be smaller than len(invoiceIDs).
func (r *repository) Claim(ctx context.Context, payoutID uuid.UUID, invoiceIDs []uuid.UUID) (int64, error) {
	if len(invoiceIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id IN ? AND payout_id IS NULL", invoiceIDs).
		Update("payout_id", payoutID)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// SumByPayout returns the claimed net total and the number of claimed rows.
func (r *repository) SumByPayout(ctx context.Context, payoutID uuid.UUID) (int64, int64, error) {
	var out struct {
		Total int64
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("COALESCE(SUM(payee_net_cents), 0) AS total, COUNT(*) AS count").
		Where("payout_id = ?", payoutID).
		Scan(&out).Error; err != nil {
		return 0, 0, err
	}
	return out.Total, out.Count, nil
}

func (r *repository) IDsByPayout(ctx context.Context, payoutID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("payout_id = ?", payoutID).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Release returns a payout's invoices to the unclaimed pool.
func (r *repository) Release(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("payout_id = ?", payoutID).
		Update("payout_id", nil)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
