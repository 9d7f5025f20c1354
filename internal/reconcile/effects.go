package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/payloads"
)

const defaultBoostDays = 7

// EffectContext is handed to hooks inside the reconciliation transaction.
type EffectContext struct {
	Tx      *gorm.DB
	Order   models.Order
	Invoice models.Invoice
	At      time.Time
}

// EffectHook runs the kind-specific consequences of a successful payment. A
// returned error rolls back the whole reconciliation.
type EffectHook interface {
	Apply(ctx context.Context, ec EffectContext) error
}

// EffectFunc adapts a function to EffectHook.
type EffectFunc func(ctx context.Context, ec EffectContext) error

func (f EffectFunc) Apply(ctx context.Context, ec EffectContext) error {
	return f(ctx, ec)
}

// Effects dispatches hooks by order kind. Common hooks run for every kind after
// the kind-specific ones.
type Effects struct {
	byKind map[enums.OrderKind][]EffectHook
	common []EffectHook
}

func NewEffects() *Effects {
	return &Effects{byKind: map[enums.OrderKind][]EffectHook{}}
}

// DefaultEffects wires the listing, reservation and notification events.
func DefaultEffects(emitter outbox.Emitter) *Effects {
	e := NewEffects()
	e.On(enums.OrderKindBoost, boostExtended{emitter: emitter})
	e.On(enums.OrderKindPartPurchase, partReserved{emitter: emitter})
	e.Always(payeeNotified{emitter: emitter})
	return e
}

func (e *Effects) On(kind enums.OrderKind, hook EffectHook) *Effects {
	e.byKind[kind] = append(e.byKind[kind], hook)
	return e
}

func (e *Effects) Always(hook EffectHook) *Effects {
	e.common = append(e.common, hook)
	return e
}

func (e *Effects) Run(ctx context.Context, ec EffectContext) error {
	if e == nil {
		return nil
	}
	for _, hook := range e.byKind[ec.Order.Kind] {
		if err := hook.Apply(ctx, ec); err != nil {
			return fmt.Errorf("%s effect: %w", ec.Order.Kind, err)
		}
	}
	for _, hook := range e.common {
		if err := hook.Apply(ctx, ec); err != nil {
			return fmt.Errorf("common effect: %w", err)
		}
	}
	return nil
}

type boostExtended struct {
	emitter outbox.Emitter
}

func (h boostExtended) Apply(ctx context.Context, ec EffectContext) error {
	boost := ec.Order.Payload.Boost
	if boost == nil {
		return fmt.Errorf("boost payload missing")
	}
	days := boost.DurationDays
	if days <= 0 {
		days = defaultBoostDays
	}
	return h.emitter.Emit(ctx, ec.Tx, outbox.DomainEvent{
		EventType:     enums.EventListingBoostExtended,
		AggregateType: enums.AggregateOrder,
		AggregateID:   ec.Order.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    ec.At,
		Data: payloads.ListingBoostExtendedEvent{
			OrderID:        ec.Order.ID,
			PartID:         boost.PartID,
			OwnerID:        ec.Order.PayerID,
			DurationDays:   days,
			BoostExpiresAt: ec.At.AddDate(0, 0, days),
		},
	})
}

type partReserved struct {
	emitter outbox.Emitter
}

func (h partReserved) Apply(ctx context.Context, ec EffectContext) error {
	purchase := ec.Order.Payload.PartPurchase
	if purchase == nil {
		return fmt.Errorf("part purchase payload missing")
	}
	return h.emitter.Emit(ctx, ec.Tx, outbox.DomainEvent{
		EventType:     enums.EventPartReserved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   ec.Order.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    ec.At,
		Data: payloads.PartReservedEvent{
			OrderID:         ec.Order.ID,
			PartID:          purchase.PartID,
			BuyerID:         ec.Order.PayerID,
			SellerID:        ec.Order.PayeeID,
			ShippingAddress: purchase.ShippingAddress,
		},
	})
}

type payeeNotified struct {
	emitter outbox.Emitter
}

func (h payeeNotified) Apply(ctx context.Context, ec EffectContext) error {
	return h.emitter.Emit(ctx, ec.Tx, outbox.DomainEvent{
		EventType:     enums.EventPayeeNotified,
		AggregateType: enums.AggregateOrder,
		AggregateID:   ec.Order.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    ec.At,
		Data: payloads.PayeeNotifiedEvent{
			OrderID:       ec.Order.ID,
			PayeeID:       ec.Order.PayeeID,
			Kind:          ec.Order.Kind,
			PayeeNetCents: ec.Invoice.PayeeNetCents,
			Currency:      ec.Invoice.Currency,
		},
	})
}
