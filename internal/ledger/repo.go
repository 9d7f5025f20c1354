package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// Filter narrows ledger reads. Zero fields are ignored; an empty filter
// matches nothing rather than the whole table.
type Filter struct {
	OrderID  uuid.UUID
	PayoutID uuid.UUID
	Type     enums.LedgerEventType
}

func (f Filter) empty() bool {
	return f.OrderID == uuid.Nil && f.PayoutID == uuid.Nil
}

// matches applies the filter in memory.
func (f Filter) matches(e models.LedgerEvent) bool {
	if f.empty() {
		return false
	}
	if f.OrderID != uuid.Nil && (e.OrderID == nil || *e.OrderID != f.OrderID) {
		return false
	}
	if f.PayoutID != uuid.Nil && (e.PayoutID == nil || *e.PayoutID != f.PayoutID) {
		return false
	}
	return f.Type == "" || e.Type == f.Type
}

// Repository is append-only: there is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	Find(ctx context.Context, filter Filter) ([]models.LedgerEvent, error)
	Exists(ctx context.Context, filter Filter) (bool, error)
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

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) scoped(ctx context.Context, filter Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.LedgerEvent{})
	if filter.OrderID != uuid.Nil {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.PayoutID != uuid.Nil {
		q = q.Where("payout_id = ?", filter.PayoutID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	return q
}

// Find returns matching events oldest first.
func (r *repository) Find(ctx context.Context, filter Filter) ([]models.LedgerEvent, error) {
	if filter.empty() {
		return nil, nil
	}
	var events []models.LedgerEvent
	err := r.scoped(ctx, filter).Order("created_at ASC").Order("id ASC").Find(&events).Error
	return events, err
}

func (r *repository) Exists(ctx context.Context, filter Filter) (bool, error) {
	if filter.empty() {
		return false, nil
	}
	var ids []uuid.UUID
	if err := r.scoped(ctx, filter).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
