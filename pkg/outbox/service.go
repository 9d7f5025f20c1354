package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const (
	oneShotIndex     = "ux_outbox_events_event_aggregate"
	oneShotSavepoint = "outbox_once"
)

// DomainEvent is what services hand to the outbox. Version and OccurredAt
// default to the current envelope version and the emit time.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter writes domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// OnceEmitter also writes events that must exist at most once per aggregate.
type OnceEmitter interface {
	Emitter
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

var _ OnceEmitter = (*Service)(nil)

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.emit(ctx, tx, event)
	return err
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (PayloadEnvelope, error) {
	if tx == nil {
		return PayloadEnvelope{}, errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return PayloadEnvelope{}, err
	}
	row, envelope, err := event.row(s.now())
	if err != nil {
		return PayloadEnvelope{}, err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return PayloadEnvelope{}, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return envelope, nil
}

// EmitIfNotExists writes event unless the aggregate already has one of the
// same type. The insert runs under a savepoint so losing a race on the
// one-shot index leaves the caller's transaction usable.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || exists {
		return err
	}

	if err := tx.SavePoint(oneShotSavepoint).Error; err != nil {
		return err
	}
	_, err = s.emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, oneShotIndex) {
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"event_type":   event.EventType,
				"aggregate_id": event.AggregateID.String(),
			}), "outbox.one_shot_exists")
		}
		return tx.RollbackTo(oneShotSavepoint).Error
	}
	return err
}
