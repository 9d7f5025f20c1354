package enums

import "fmt"

// LedgerEventType maps to the ledger_events.type column.
type LedgerEventType string

const (
	LedgerEventTypeOrderPaid       LedgerEventType = "order_paid"
	LedgerEventTypeOrderFailed     LedgerEventType = "order_failed"
	LedgerEventTypeOrderCancelled  LedgerEventType = "order_cancelled"
	LedgerEventTypePayoutRequested LedgerEventType = "payout_requested"
	LedgerEventTypePayoutPaid      LedgerEventType = "payout_paid"
	LedgerEventTypePayoutFailed    LedgerEventType = "payout_failed"
	LedgerEventTypePayoutReopened  LedgerEventType = "payout_reopened"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypeOrderPaid,
	LedgerEventTypeOrderFailed,
	LedgerEventTypeOrderCancelled,
	LedgerEventTypePayoutRequested,
	LedgerEventTypePayoutPaid,
	LedgerEventTypePayoutFailed,
	LedgerEventTypePayoutReopened,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
