package payouts

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/middleware"
	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/api/validators"
	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	payoutsvc "github.com/angelmondragon/gearledger-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// Service is the payee-facing payout surface.
type Service interface {
	SchedulePayout(ctx context.Context, payeeID uuid.UUID) (*payoutsvc.PayoutDTO, error)
	ListPayouts(ctx context.Context, payeeID uuid.UUID, limit int) ([]payoutsvc.PayoutDTO, error)
	GetPayout(ctx context.Context, payoutID, payeeID uuid.UUID) (*payoutsvc.PayoutDTO, error)
}

// Request sweeps the caller's unclaimed invoices into a payout.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
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

func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListPayouts(r.Context(), payeeID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.NewListResult(items))
	}
}

// Detail returns one of the caller's payouts. Admins may read any payout.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		callerID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		scope := callerID
		if middleware.IsAdmin(r.Context()) {
			scope = uuid.Nil
		}
		payout, err := svc.GetPayout(r.Context(), payoutID, scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// Invoices lists the caller's invoices as payee, newest first. ?unclaimed=true
// narrows to invoices not yet swept into a payout; ?cursor= continues from the
// previous page's next_cursor.
func Invoices(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unclaimed, err := validators.ParseQueryBool(r, "unclaimed")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := pagination.Parse(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor"))
			return
		}

		list, err := svc.ListForPayee(r.Context(), payeeID, invoices.ListFilter{Unclaimed: unclaimed, Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
