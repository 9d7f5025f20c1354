package connect

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/middleware"
	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/api/validators"
	"github.com/angelmondragon/gearledger-backend/internal/onboarding"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

// Service tracks the caller's connected account.
type Service interface {
	StartOnboarding(ctx context.Context, payeeID uuid.UUID, identity onboarding.Identity) (*onboarding.StatusView, error)
	RefreshLink(ctx context.Context, payeeID uuid.UUID) (*onboarding.StatusView, error)
	Status(ctx context.Context, payeeID uuid.UUID) (*onboarding.StatusView, error)
}

type startRequest struct {
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Country      string `json:"country" validate:"omitempty,country"`
	BusinessType string `json:"business_type" validate:"omitempty,oneof=individual company"`
}

// Start opens the caller's connected account if needed and returns a fresh
// onboarding link. The body is optional.
func Start(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload startRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.StartOnboarding(r.Context(), payeeID, onboarding.Identity{
			Email:        validators.SanitizeString(payload.Email, 254),
			Country:      validators.NormalizeCountry(payload.Country),
			BusinessType: validators.SanitizeString(payload.BusinessType, 32),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Refresh issues a new onboarding link for an account still under review.
func Refresh(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RefreshLink(r.Context(), payeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Status(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		payeeID, err := middleware.CallerID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Status(r.Context(), payeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
