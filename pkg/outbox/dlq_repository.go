package outbox

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

var (
	// ErrDLQEntryNotFound is returned by Replay for an event with no DLQ row.
	ErrDLQEntryNotFound = errors.New("dlq entry not found")
	// ErrEventGone is returned by Replay when the outbox row was published or
	// purged by retention after it was dead-lettered.
	ErrEventGone = errors.New("outbox event already published or purged")
)

// DLQFilter narrows List. A zero Reason lists every reason.
type DLQFilter struct {
	Reason enums.OutboxDLQErrorReason
	Cursor *pagination.Cursor
	Limit  int
}

// DLQRepository stores events the relay gave up on and lets an operator put
// them back in the publish queue.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List returns dead letters newest first. Callers trim the extra lookahead
// row with pagination.Trim.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	err := query.Scopes(pagination.Keyset(filter.Cursor, filter.Limit)).Find(&rows).Error
	return rows, err
}

// Replay re-queues a dead-lettered event: the outbox row's attempts and last
// error are cleared and its DLQ rows removed, in one transaction.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.OutboxDLQ{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", ErrDLQEntryNotFound, eventID)
		}
		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrEventGone, eventID)
		}
		return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
	})
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
