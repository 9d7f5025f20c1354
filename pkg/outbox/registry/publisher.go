package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PaymentsTopic == "" {
		return nil, fmt.Errorf("payments topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	if cfg.ListingsTopic == "" {
		return nil, fmt.Errorf("listings topic is required")
	}
	if cfg.OperatorTopic == "" {
		return nil, fmt.Errorf("operator topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	paymentsTopic := cfg.PaymentsTopic
	notificationTopic := cfg.NotificationTopic
	listingsTopic := cfg.ListingsTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderSucceeded,
			AggregateType:  enums.AggregateOrder,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderSucceededEvent{} },
		},
		{
			EventType:      enums.EventOrderFailed,
			AggregateType:  enums.AggregateOrder,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderFailedEvent{} },
		},
		{
			EventType:      enums.EventOrderCancelled,
			AggregateType:  enums.AggregateOrder,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderCancelledEvent{} },
		},
		{
			EventType:      enums.EventPayoutRequested,
			AggregateType:  enums.AggregatePayout,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.PayoutStatusEvent{} },
		},
		{
			EventType:      enums.EventPayoutPaid,
			AggregateType:  enums.AggregatePayout,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.PayoutStatusEvent{} },
		},
		{
			EventType:      enums.EventPayoutFailed,
			AggregateType:  enums.AggregatePayout,
			Topic:          paymentsTopic,
			PayloadFactory: func() interface{} { return &payloads.PayoutStatusEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventListingBoostExtended,
			AggregateType:  enums.AggregateOrder,
			Topic:          listingsTopic,
			PayloadFactory: func() interface{} { return &payloads.ListingBoostExtendedEvent{} },
		},
		{
			EventType:      enums.EventPartReserved,
			AggregateType:  enums.AggregateOrder,
			Topic:          listingsTopic,
			PayloadFactory: func() interface{} { return &payloads.PartReservedEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventPayeeNotified,
			AggregateType:  enums.AggregateOrder,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.PayeeNotifiedEvent{} },
		},
		{
			EventType:      enums.EventPayerReceipt,
			AggregateType:  enums.AggregateOrder,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.PayerReceiptEvent{} },
		},
		{
			EventType:      enums.EventOnboardingVerified,
			AggregateType:  enums.AggregateConnectedAccount,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.OnboardingVerifiedEvent{} },
		},
	} {
		reg.register(desc)
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventPayoutHoldPlaced,
		AggregateType:  enums.AggregatePayee,
		Topic:          cfg.OperatorTopic,
		PayloadFactory: func() interface{} { return &payloads.PayoutHoldPlacedEvent{} },
	})

	return reg, nil
}

// Topics returns the distinct topics referenced by registered events.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
