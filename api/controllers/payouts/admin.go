package payouts

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/api/validators"
	payoutsvc "github.com/angelmondragon/gearledger-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

// AdminService is the operator surface over payouts and holds.
type AdminService interface {
	SchedulePayout(ctx context.Context, payeeID uuid.UUID) (*payoutsvc.PayoutDTO, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*payoutsvc.PayoutDTO, error)
	ReopenPayout(ctx context.Context, payoutID uuid.UUID) (*payoutsvc.PayoutDTO, error)
	ReleaseHold(ctx context.Context, payeeID uuid.UUID) error
}

// AdminSchedule runs a payout for the payee named in the path.
func AdminSchedule(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payeeID, err := validators.ParseUUIDParam(r, "payeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.SchedulePayout(r.Context(), payeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

// AdminRetry resends a failed payout's transfer.
func AdminRetry(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, svc, func(ctx context.Context, id uuid.UUID) (*payoutsvc.PayoutDTO, error) {
		return svc.RetryPayout(ctx, id)
	})
}

// AdminReopen releases a failed payout's invoices back to the claimable pool.
func AdminReopen(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, svc, func(ctx context.Context, id uuid.UUID) (*payoutsvc.PayoutDTO, error) {
		return svc.ReopenPayout(ctx, id)
	})
}

// AdminReleaseHold clears the invariant hold that blocks a payee's payouts.
func AdminReleaseHold(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payeeID, err := validators.ParseUUIDParam(r, "payeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ReleaseHold(r.Context(), payeeID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func payoutAction(logg *logger.Logger, svc AdminService, fn func(context.Context, uuid.UUID) (*payoutsvc.PayoutDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := fn(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}
