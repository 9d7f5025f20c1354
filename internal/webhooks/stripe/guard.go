package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gearledger-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// ClaimState is what a delivery finds when it tries to claim an event.
type ClaimState int

const (
	// Claimed means this delivery owns the event and must process it.
	Claimed ClaimState = iota
	// InFlight means another delivery is processing the event right now.
	InFlight
	// Done means an earlier delivery committed the event.
	Done
)

// EventGuard short-circuits redelivered provider events. A claim is held as
// "processing" for a short lease and becomes "done" only after the handler
// committed, so a crashed or timed-out delivery never blocks retries past the
// lease.
type EventGuard struct {
	store   redis.IdempotencyStore
	lease   time.Duration
	doneTTL time.Duration
	scope   string
}

func NewEventGuard(store redis.IdempotencyStore, lease, doneTTL time.Duration, scope string) (*EventGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case lease <= 0 || doneTTL <= 0:
		return nil, errors.New("lease and done ttl must be positive")
	case lease > doneTTL:
		return nil, errors.New("lease must not outlast the done ttl")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &EventGuard{store: store, lease: lease, doneTTL: doneTTL, scope: scope}, nil
}

// Claim takes the processing lease for eventID, or reports who holds it.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key, err := g.key(eventID)
	if err != nil {
		return InFlight, err
	}
	claimed, err := g.store.SetNX(ctx, key, markerProcessing, g.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim webhook event: %w", err)
	}
	if claimed {
		return Claimed, nil
	}
	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// the lease lapsed between SetNX and Get; the next retry claims it
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read webhook marker: %w", err)
	case marker == markerDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete records that the event committed. It runs detached from ctx's
// cancellation so a dropped provider connection cannot skip it.
func (g *EventGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(context.WithoutCancel(ctx), key, markerDone, g.doneTTL)
}

// Release drops the lease so the provider's retry is processed again. It runs
// detached from ctx's cancellation for the same reason as Complete.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(context.WithoutCancel(ctx), key)
}

func (g *EventGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
