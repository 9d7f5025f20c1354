package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Identity is what the provider needs to open an express account.
type Identity struct {
	Email        string `json:"email"`
	Country      string `json:"country"`
	BusinessType string `json:"business_type"`
}

// AccountSnapshot mirrors the account.updated webhook payload.
type AccountSnapshot struct {
	AccountID        string
	DetailsSubmitted bool
	PayoutsEnabled   bool
}

// StatusView is returned to the payee.
type StatusView struct {
	PayeeID          uuid.UUID              `json:"payee_id"`
	Status           enums.OnboardingStatus `json:"status"`
	AccountID        string                 `json:"account_id,omitempty"`
	DetailsSubmitted bool                   `json:"details_submitted"`
	PayoutsEnabled   bool                   `json:"payouts_enabled"`
	OnboardingURL    string                 `json:"onboarding_url,omitempty"`
	VerifiedAt       *time.Time             `json:"verified_at,omitempty"`
}

type ServiceParams struct {
	Repo              Repository
	Gateway           provider.Gateway
	Outbox            outbox.OnceEmitter
	TransactionRunner txRunner
	DefaultCountry    string
	Logger            *logger.Logger
}

type Service struct {
	repo           Repository
	gateway        provider.Gateway
	outbox         outbox.OnceEmitter
	tx             txRunner
	defaultCountry string
	logg           *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("connected account repository required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	country := strings.ToUpper(strings.TrimSpace(params.DefaultCountry))
	if country == "" {
		country = "US"
	}
	return &Service{
		repo:           params.Repo,
		gateway:        params.Gateway,
		outbox:         params.Outbox,
		tx:             params.TransactionRunner,
		defaultCountry: country,
		logg:           params.Logger,
	}, nil
}

// payable is true while the account is verified and the provider still
// allows payouts to it. The provider can switch payouts off after verification.
func payable(account *models.ConnectedAccount) bool {
	return account != nil && account.Status == enums.OnboardingStatusVerified && account.PayoutsEnabled
}

// IsPayoutEligible reports whether the payee's account can receive transfers.
func (s *Service) IsPayoutEligible(ctx context.Context, payeeID uuid.UUID) (bool, error) {
	account, err := s.find(ctx, payeeID)
	if err != nil {
		return false, err
	}
	return payable(account), nil
}

// DestinationAccount returns the provider account that receives transfers.
func (s *Service) DestinationAccount(ctx context.Context, payeeID uuid.UUID) (string, error) {
	account, err := s.find(ctx, payeeID)
	if err != nil {
		return "", err
	}
	if !payable(account) {
		return "", pkgerrors.New(pkgerrors.CodeInsufficientClaimable, "payee not verified for payouts").
			WithDetails(map[string]any{"reason": "payee_not_verified"})
	}
	return account.ProviderAccountID, nil
}

// FilterEligible keeps the payees whose accounts can receive transfers.
func (s *Service) FilterEligible(ctx context.Context, payeeIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.ListPayablePayeeIDs(ctx, payeeIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list verified payees")
	}
	return ids, nil
}

func (s *Service) Status(ctx context.Context, payeeID uuid.UUID) (*StatusView, error) {
	account, err := s.find(ctx, payeeID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &StatusView{PayeeID: payeeID, Status: enums.OnboardingStatusNotCreated}, nil
	}
	return viewOf(account), nil
}

// StartOnboarding opens a connected account on first use and always returns a
// fresh onboarding link.
func (s *Service) StartOnboarding(ctx context.Context, payeeID uuid.UUID, identity Identity) (*StatusView, error) {
	if payeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payee id is required")
	}
	ctx = s.logg.WithPayeeID(ctx, payeeID.String())

	account, err := s.find(ctx, payeeID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account, err = s.createAccount(ctx, payeeID, identity)
		if err != nil {
			return nil, err
		}
	}

	view := viewOf(account)
	if account.Status == enums.OnboardingStatusVerified {
		return view, nil
	}
	link, err := s.gateway.CreateOnboardingLink(ctx, account.ProviderAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	view.OnboardingURL = link
	return view, nil
}

// RefreshLink reissues an expired onboarding link.
func (s *Service) RefreshLink(ctx context.Context, payeeID uuid.UUID) (*StatusView, error) {
	account, err := s.find(ctx, payeeID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Status != enums.OnboardingStatusPendingVerification {
		status := enums.OnboardingStatusNotCreated
		if account != nil {
			status = account.Status
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "onboarding link can only be refreshed while verification is pending").
			WithDetails(map[string]any{"status": status})
	}
	link, err := s.gateway.CreateOnboardingLink(ctx, account.ProviderAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	view := viewOf(account)
	view.OnboardingURL = link
	return view, nil
}

// SyncAccount applies provider account state. Verification is one-way.
func (s *Service) SyncAccount(ctx context.Context, snapshot AccountSnapshot) error {
	if snapshot.AccountID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	account, err := s.repo.FindByAccountID(ctx, snapshot.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// accounts created outside this platform are not ours to track
			s.logg.Warn(ctx, "account.updated for unknown connected account "+snapshot.AccountID)
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load connected account")
	}
	ctx = s.logg.WithPayeeID(ctx, account.PayeeID.String())

	now := time.Now().UTC()
	updates := map[string]any{
		"details_submitted": snapshot.DetailsSubmitted,
		"payouts_enabled":   snapshot.PayoutsEnabled,
		"updated_at":        now,
	}
	becameVerified := account.Status != enums.OnboardingStatusVerified &&
		snapshot.DetailsSubmitted && snapshot.PayoutsEnabled
	if becameVerified {
		updates["status"] = enums.OnboardingStatusVerified
		updates["verified_at"] = now
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateFlags(ctx, account.PayeeID, updates); err != nil {
			return err
		}
		if !becameVerified {
			return nil
		}
		s.logg.Info(ctx, "connected account verified")
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOnboardingVerified,
			AggregateType: enums.AggregateConnectedAccount,
			AggregateID:   account.PayeeID,
			Actor:         outbox.SystemActor(),
			OccurredAt:    now,
			Data: payloads.OnboardingVerifiedEvent{
				PayeeID:    account.PayeeID,
				AccountID:  account.ProviderAccountID,
				VerifiedAt: now,
			},
		})
	})
}

func (s *Service) createAccount(ctx context.Context, payeeID uuid.UUID, identity Identity) (*models.ConnectedAccount, error) {
	country := strings.ToUpper(strings.TrimSpace(identity.Country))
	if country == "" {
		country = s.defaultCountry
	}
	if len(country) != 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country must be a 2-letter code")
	}
	businessType := identity.BusinessType
	if businessType == "" {
		businessType = "individual"
	}

	remote, err := s.gateway.CreateConnectedAccount(ctx, provider.AccountRequest{
		IdempotencyKey: "onboarding:" + payeeID.String(),
		PayeeID:        payeeID,
		Email:          identity.Email,
		Country:        country,
		BusinessType:   businessType,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
	}

	account := &models.ConnectedAccount{
		PayeeID:           payeeID,
		ProviderAccountID: remote.ID,
		Status:            enums.OnboardingStatusPendingVerification,
		DetailsSubmitted:  remote.DetailsSubmitted,
		PayoutsEnabled:    remote.PayoutsEnabled,
		Email:             identity.Email,
		Country:           country,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		// the idempotency key returns the same account, so a concurrent start wins
		existing, findErr := s.find(ctx, payeeID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store connected account")
	}
	s.logg.Info(ctx, "connected account created")
	return account, nil
}

func (s *Service) find(ctx context.Context, payeeID uuid.UUID) (*models.ConnectedAccount, error) {
	account, err := s.repo.FindByPayeeID(ctx, payeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load connected account")
	}
	return account, nil
}

func viewOf(account *models.ConnectedAccount) *StatusView {
	return &StatusView{
		PayeeID:          account.PayeeID,
		Status:           account.Status,
		AccountID:        account.ProviderAccountID,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
		VerifiedAt:       account.VerifiedAt,
	}
}
