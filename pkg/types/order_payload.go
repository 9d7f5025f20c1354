package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// OrderPayload is the kind-specific body of an order. Exactly one member is set.
type OrderPayload struct {
	Boost          *BoostPayload          `json:"boost,omitempty"`
	PartPurchase   *PartPurchasePayload   `json:"part_purchase,omitempty"`
	ServicePayment *ServicePaymentPayload `json:"service_payment,omitempty"`
}

type BoostPayload struct {
	PartID       uuid.UUID `json:"part_id"`
	DurationDays int       `json:"duration_days"`
}

type PartPurchasePayload struct {
	PartID          uuid.UUID       `json:"part_id"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
}

type ServicePaymentPayload struct {
	MechanicID      uuid.UUID `json:"mechanic_id"`
	ServiceType     string    `json:"service_type"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Kind returns the order kind carried by the payload. ok is false unless
// exactly one member is populated.
func (p OrderPayload) Kind() (kind enums.OrderKind, ok bool) {
	set := 0
	if p.Boost != nil {
		kind = enums.OrderKindBoost
		set++
	}
	if p.PartPurchase != nil {
		kind = enums.OrderKindPartPurchase
		set++
	}
	if p.ServicePayment != nil {
		kind = enums.OrderKindServicePayment
		set++
	}
	if set != 1 {
		return "", false
	}
	return kind, true
}

// SubjectID returns the listing or mechanic the order pays for.
func (p OrderPayload) SubjectID() uuid.UUID {
	switch {
	case p.Boost != nil:
		return p.Boost.PartID
	case p.PartPurchase != nil:
		return p.PartPurchase.PartID
	case p.ServicePayment != nil:
		return p.ServicePayment.MechanicID
	default:
		return uuid.Nil
	}
}
