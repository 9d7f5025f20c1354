package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

// fakePendingOrders behaves like the repository: cancelled orders leave the
// pending set, everything else stays.
type fakePendingOrders struct {
	pending []uuid.UUID
	cutoffs []time.Time
}

func (f *fakePendingOrders) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	out := []models.Order{}
	for _, id := range f.pending {
		if len(out) == limit {
			break
		}
		out = append(out, models.Order{ID: id, Status: enums.OrderStatusPending})
	}
	return out, nil
}

func (f *fakePendingOrders) remove(id uuid.UUID) {
	for i, candidate := range f.pending {
		if candidate == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

type fakeCanceller struct {
	orders   *fakePendingOrders
	failures map[uuid.UUID]error
	actors   []reconcile.Actor
}

func (f *fakeCanceller) Cancel(_ context.Context, orderID uuid.UUID, actor reconcile.Actor) (*reconcile.Result, error) {
	f.actors = append(f.actors, actor)
	if err, ok := f.failures[orderID]; ok {
		return nil, err
	}
	f.orders.remove(orderID)
	return &reconcile.Result{OrderID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func newCheckoutExpiryJob(t *testing.T, orders *fakePendingOrders, canceller *fakeCanceller, batch int) *checkoutExpiryJob {
	t.Helper()
	job, err := NewCheckoutExpiryJob(CheckoutExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Orders:     orders,
		Reconciler: canceller,
		PendingTTL: 2 * time.Hour,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	return job.(*checkoutExpiryJob)
}

func TestCheckoutExpiryCancelsAcrossBatches(t *testing.T) {
	orders := &fakePendingOrders{}
	for i := 0; i < 5; i++ {
		orders.pending = append(orders.pending, uuid.New())
	}
	canceller := &fakeCanceller{orders: orders}
	job := newCheckoutExpiryJob(t, orders, canceller, 2)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, orders.pending)
	assert.Len(t, canceller.actors, 5)
	for _, actor := range canceller.actors {
		assert.True(t, actor.System)
	}
	assert.Equal(t, now.Add(-2*time.Hour), orders.cutoffs[0])
}

func TestCheckoutExpirySkipsRacesAndCollectsErrors(t *testing.T) {
	raced, broken, fine := uuid.New(), uuid.New(), uuid.New()
	orders := &fakePendingOrders{pending: []uuid.UUID{raced, broken, fine}}
	canceller := &fakeCanceller{
		orders: orders,
		failures: map[uuid.UUID]error{
			raced:  pkgerrors.New(pkgerrors.CodeStateConflict, "order already succeeded"),
			broken: errors.New("db down"),
		},
	}
	job := newCheckoutExpiryJob(t, orders, canceller, 10)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.String())
	assert.NotContains(t, err.Error(), raced.String())
	assert.Equal(t, []uuid.UUID{raced, broken}, orders.pending)
	assert.Len(t, canceller.actors, 3)
}
