package enums

import "fmt"

// OrderKind maps to the orders.kind column.
type OrderKind string

const (
	OrderKindBoost          OrderKind = "boost"
	OrderKindPartPurchase   OrderKind = "part_purchase"
	OrderKindServicePayment OrderKind = "service_payment"
)

var validOrderKinds = []OrderKind{
	OrderKindBoost,
	OrderKindPartPurchase,
	OrderKindServicePayment,
}

// String implements fmt.Stringer.
func (k OrderKind) String() string {
	return string(k)
}

// IsValid reports whether the value matches a known order kind.
func (k OrderKind) IsValid() bool {
	for _, candidate := range validOrderKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseOrderKind converts raw input into OrderKind.
func ParseOrderKind(value string) (OrderKind, error) {
	for _, candidate := range validOrderKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order kind %q", value)
}

// OrderStatus maps to the orders.status column.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusSucceeded  OrderStatus = "succeeded"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusSucceeded,
	OrderStatusFailed,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches a known order status.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusSucceeded, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the order state machine.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		switch next {
		case OrderStatusProcessing, OrderStatusSucceeded, OrderStatusFailed, OrderStatusCancelled:
			return true
		}
	case OrderStatusProcessing:
		switch next {
		case OrderStatusSucceeded, OrderStatusFailed:
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
