package enums

import "fmt"

// OutboxAggregateType maps to the outbox_events.aggregate_type column.
type OutboxAggregateType string

const (
	AggregateOrder            OutboxAggregateType = "order"
	AggregatePayout           OutboxAggregateType = "payout"
	AggregateConnectedAccount OutboxAggregateType = "connected_account"
	AggregatePayee            OutboxAggregateType = "payee"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayout,
	AggregateConnectedAccount,
	AggregatePayee,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the outbox_events.event_type column.
type OutboxEventType string

const (
	EventOrderSucceeded       OutboxEventType = "order_succeeded"
	EventOrderFailed          OutboxEventType = "order_failed"
	EventOrderCancelled       OutboxEventType = "order_cancelled"
	EventListingBoostExtended OutboxEventType = "listing_boost_extended"
	EventPartReserved         OutboxEventType = "part_reserved"
	EventPayeeNotified        OutboxEventType = "payee_notified"
	EventPayerReceipt         OutboxEventType = "payer_receipt"
	EventPayoutRequested      OutboxEventType = "payout_requested"
	EventPayoutPaid           OutboxEventType = "payout_paid"
	EventPayoutFailed         OutboxEventType = "payout_failed"
	EventPayoutHoldPlaced     OutboxEventType = "payout_hold_placed"
	EventOnboardingVerified   OutboxEventType = "onboarding_verified"
)

var validEventTypes = []OutboxEventType{
	EventOrderSucceeded,
	EventOrderFailed,
	EventOrderCancelled,
	EventListingBoostExtended,
	EventPartReserved,
	EventPayeeNotified,
	EventPayerReceipt,
	EventPayoutRequested,
	EventPayoutPaid,
	EventPayoutFailed,
	EventPayoutHoldPlaced,
	EventOnboardingVerified,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
