package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gearledger-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const defaultPayoutBatchLimit = 200

type unclaimedPayeeLister interface {
	ListPayeesWithUnclaimed(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type eligiblePayeeFilter interface {
	FilterEligible(ctx context.Context, payeeIDs []uuid.UUID) ([]uuid.UUID, error)
}

type payoutScheduler interface {
	SchedulePayout(ctx context.Context, payeeID uuid.UUID) (*payouts.PayoutDTO, error)
}

// PayoutBatchJobParams configure automatic payout scheduling.
type PayoutBatchJobParams struct {
	Logger     *logger.Logger
	Invoices   unclaimedPayeeLister
	Onboarding eligiblePayeeFilter
	Payouts    payoutScheduler
	Limit      int
}

// NewPayoutBatchJob builds the job that pays out every verified payee holding
// unclaimed invoices.
func NewPayoutBatchJob(params PayoutBatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Onboarding == nil {
		return nil, fmt.Errorf("onboarding service required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPayoutBatchLimit
	}
	return &payoutBatchJob{
		logg:       params.Logger,
		invoices:   params.Invoices,
		onboarding: params.Onboarding,
		payouts:    params.Payouts,
		limit:      limit,
	}, nil
}

type payoutBatchJob struct {
	logg       *logger.Logger
	invoices   unclaimedPayeeLister
	onboarding eligiblePayeeFilter
	payouts    payoutScheduler
	limit      int
}

func (j *payoutBatchJob) Name() string { return "payout-batch" }

func (j *payoutBatchJob) Run(ctx context.Context) error {
	payees, err := j.invoices.ListPayeesWithUnclaimed(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list payees with unclaimed invoices: %w", err)
	}
	eligible, err := j.onboarding.FilterEligible(ctx, payees)
	if err != nil {
		return fmt.Errorf("filter eligible payees: %w", err)
	}

	var (
		errs      error
		scheduled int
		held      int
	)
	for _, payeeID := range eligible {
		payout, err := j.payouts.SchedulePayout(ctx, payeeID)
		switch {
		case err == nil:
			scheduled++
			j.logg.Info(j.logg.WithPayoutID(ctx, payout.ID.String()), "batch payout scheduled")
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientClaimable):
			// claimed by a manual request since the listing
		case pkgerrors.IsCode(err, pkgerrors.CodeInconsistentInvariant):
			held++
		default:
			errs = multierr.Append(errs, fmt.Errorf("schedule payout for %s: %w", payeeID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(payees),
		"eligible":   len(eligible),
		"scheduled":  scheduled,
		"held":       held,
	})
	j.logg.Info(logCtx, "payout batch complete")
	return errs
}
