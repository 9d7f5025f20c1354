package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/middleware"
	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/gearledger-backend/internal/checkout"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// CheckoutConfirmer reconciles a session on the payer's return from the hosted page.
type CheckoutConfirmer interface {
	PayerForSession(ctx context.Context, sessionID string) (uuid.UUID, error)
	Confirm(ctx context.Context, sessionID string) (*reconcile.Result, error)
}

// Checkout starts a hosted checkout for the caller and returns the redirect.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		payerID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckout(r.Context(), checkoutsvc.CreateCheckoutInput{
			Kind:       enums.OrderKind(strings.TrimSpace(string(payload.Kind))),
			PayerID:    payerID,
			PayeeID:    payload.PayeeID,
			GrossCents: payload.GrossCents,
			Payload:    payload.Payload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Kind       enums.OrderKind    `json:"kind" validate:"required,order_kind"`
	PayeeID    uuid.UUID          `json:"payee_id"`
	GrossCents int64              `json:"gross_cents"`
	Payload    types.OrderPayload `json:"payload"`
}

// ConfirmCheckout backs the success page. The webhook remains authoritative;
// this only lets the page show a settled order sooner.
func ConfirmCheckout(svc CheckoutConfirmer, logg *logger.Logger) http.HandlerFunc {
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

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := strings.TrimSpace(payload.SessionID)
		if !middleware.IsAdmin(r.Context()) {
			payerID, err := svc.PayerForSession(r.Context(), sessionID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payerID != callerID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
		}

		result, err := svc.Confirm(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type confirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}
