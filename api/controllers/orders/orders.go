package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/middleware"
	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/api/validators"
	internalorders "github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// Canceller cancels a pending order on behalf of an actor.
type Canceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, actor reconcile.Actor) (*reconcile.Result, error)
}

// List returns the caller's most recent orders as payer.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		callerID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListForPayer(r.Context(), callerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.NewListResult(items))
	}
}

// Detail returns one order to its payer, its payee or an admin.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		callerID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		viewer := internalorders.Viewer{UserID: callerID, Role: enums.Role(middleware.RoleFromContext(r.Context()))}
		order, err := svc.Get(r.Context(), orderID, viewer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel lets the payer abandon an order that has not been paid.
func Cancel(svc Canceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		callerID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), orderID, reconcile.Actor{UserID: callerID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
