package checkout

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

const (
	minBoostDays = 1
	maxBoostDays = 90
)

// FieldError names the input that failed validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func invalid(field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+": "+reason).
		WithDetails(FieldError{Field: field, Reason: reason})
}

// validate checks the request before anything is persisted. Boost duration
// defaults are filled in place.
func validate(input *CreateCheckoutInput, defaultBoostDays int) error {
	if !input.Kind.IsValid() {
		return invalid("kind", "unknown order kind")
	}
	if input.PayerID == uuid.Nil {
		return invalid("payer_id", "required")
	}
	if input.PayeeID == uuid.Nil {
		return invalid("payee_id", "required")
	}
	if input.GrossCents <= 0 {
		return invalid("gross_cents", "must be greater than zero")
	}

	kind, ok := input.Payload.Kind()
	if !ok {
		return invalid("payload", "exactly one kind payload is required")
	}
	if kind != input.Kind {
		return invalid("payload", "payload does not match order kind")
	}

	switch kind {
	case enums.OrderKindBoost:
		boost := input.Payload.Boost
		if boost.PartID == uuid.Nil {
			return invalid("payload.boost.part_id", "required")
		}
		if boost.DurationDays == 0 {
			boost.DurationDays = defaultBoostDays
		}
		if boost.DurationDays < minBoostDays || boost.DurationDays > maxBoostDays {
			return invalid("payload.boost.duration_days", "must be between 1 and 90")
		}
	case enums.OrderKindPartPurchase:
		purchase := input.Payload.PartPurchase
		if purchase.PartID == uuid.Nil {
			return invalid("payload.part_purchase.part_id", "required")
		}
		if input.PayeeID == input.PayerID {
			return invalid("payee_id", "cannot buy your own part")
		}
		if err := purchase.ShippingAddress.Validate(); err != nil {
			return invalid("payload.part_purchase.shipping_address", err.Error())
		}
	case enums.OrderKindServicePayment:
		service := input.Payload.ServicePayment
		if service.MechanicID == uuid.Nil {
			return invalid("payload.service_payment.mechanic_id", "required")
		}
		if strings.TrimSpace(service.ServiceType) == "" {
			return invalid("payload.service_payment.service_type", "required")
		}
		if service.DurationMinutes <= 0 {
			return invalid("payload.service_payment.duration_minutes", "must be greater than zero")
		}
	}
	return nil
}

func productName(kind enums.OrderKind, payload types.OrderPayload) string {
	switch kind {
	case enums.OrderKindBoost:
		return "Listing boost"
	case enums.OrderKindPartPurchase:
		return "Part purchase"
	case enums.OrderKindServicePayment:
		if payload.ServicePayment != nil && payload.ServicePayment.ServiceType != "" {
			return "Mechanic service: " + payload.ServicePayment.ServiceType
		}
		return "Mechanic service"
	default:
		return "GearLedger order"
	}
}
