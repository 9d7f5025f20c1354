package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
)

const currentEnvelopeVersion = 1

// ActorRef identifies who produced the event. A nil UserID means the system.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// SystemActor is attached to events produced by webhooks and scheduled jobs.
func SystemActor() *ActorRef {
	return &ActorRef{UserID: uuid.Nil, Role: "system"}
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive. EventID equals the outbox row id, so consumers, the DLQ and the
// replay CLI all talk about the same identifier.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("outbox event type %q is invalid", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("outbox aggregate type %q is invalid", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return errors.New("outbox aggregate id is required")
	}
	return nil
}

// row renders the event into the outbox row and the envelope it carries.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	id := uuid.New()
	envelope := PayloadEnvelope{
		Version:    e.Version,
		EventID:    id.String(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = currentEnvelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = now
	}
	envelope.OccurredAt = envelope.OccurredAt.UTC()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
