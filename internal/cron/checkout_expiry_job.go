package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const (
	defaultPendingTTL      = 24 * time.Hour
	checkoutExpiryBatch    = 100
	checkoutExpiryMaxLoops = 50
)

type stalePendingReader interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, actor reconcile.Actor) (*reconcile.Result, error)
}

// CheckoutExpiryJobParams configure the pending checkout sweep.
type CheckoutExpiryJobParams struct {
	Logger     *logger.Logger
	Orders     stalePendingReader
	Reconciler orderCanceller
	PendingTTL time.Duration
	BatchSize  int
}

// NewCheckoutExpiryJob builds the job that cancels checkouts the payer never finished.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = checkoutExpiryBatch
	}
	return &checkoutExpiryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		reconciler: params.Reconciler,
		ttl:        ttl,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg       *logger.Logger
	orders     stalePendingReader
	reconciler orderCanceller
	ttl        time.Duration
	batch      int
	now        func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		errs      error
		cancelled int
		skipped   = map[uuid.UUID]struct{}{}
	)
	for loop := 0; loop < checkoutExpiryMaxLoops; loop++ {
		stale, err := j.orders.ListStalePending(ctx, cutoff, j.batch+len(skipped))
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("query stale pending orders: %w", err))
		}
		progressed := false
		for _, order := range stale {
			if _, seen := skipped[order.ID]; seen {
				continue
			}
			if _, err := j.reconciler.Cancel(ctx, order.ID, reconcile.SystemActor()); err != nil {
				skipped[order.ID] = struct{}{}
				// the payment landed between the query and the cancel
				if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
					continue
				}
				errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
				continue
			}
			cancelled++
			progressed = true
		}
		if !progressed || len(stale) < j.batch+len(skipped) {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"cancelled": cancelled,
		"skipped":   len(skipped),
	})
	j.logg.Info(logCtx, "checkout expiry sweep complete")
	return errs
}
