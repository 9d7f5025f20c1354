package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/ledger"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/metrics"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox/payloads"
)

const (
	reasonNoUnclaimed      = "no_unclaimed_invoices"
	reasonPayeeNotVerified = "payee_not_verified"
	reasonTotalMismatch    = "payout_total_mismatch"
	reasonPaidAfterReopen  = "paid_after_reopen"

	defaultMaxInvoices = 500
)

// errNothingClaimed rolls back a schedule that found nothing to claim.
var errNothingClaimed = errors.New("no invoices claimed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Eligibility answers whether and where a payee can be paid.
type Eligibility interface {
	IsPayoutEligible(ctx context.Context, payeeID uuid.UUID) (bool, error)
	DestinationAccount(ctx context.Context, payeeID uuid.UUID) (string, error)
}

type ServiceParams struct {
	Repo              Repository
	Invoices          invoices.Repository
	Ledger            ledger.Service
	Outbox            outbox.Emitter
	Eligibility       Eligibility
	Gateway           provider.Gateway
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.PaymentMetrics
	Currency          string
	MaxInvoices       int
	Clock             func() time.Time
}

// Service batches a payee's unclaimed invoices into transfers.
type Service struct {
	repo        Repository
	invoices    invoices.Repository
	ledger      ledger.Service
	outbox      outbox.Emitter
	eligibility Eligibility
	gateway     provider.Gateway
	tx          txRunner
	logg        *logger.Logger
	metrics     *metrics.PaymentMetrics
	currency    string
	maxInvoices int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoice repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Eligibility == nil:
		return nil, fmt.Errorf("eligibility checker required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	maxInvoices := params.MaxInvoices
	if maxInvoices <= 0 {
		maxInvoices = defaultMaxInvoices
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        params.Repo,
		invoices:    params.Invoices,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		eligibility: params.Eligibility,
		gateway:     params.Gateway,
		tx:          params.TransactionRunner,
		logg:        params.Logger,
		metrics:     params.Metrics,
		currency:    currency,
		maxInvoices: maxInvoices,
		now:         clock,
	}, nil
}

// SchedulePayout claims every unclaimed invoice of the payee into a new
// payout and sends the transfer.
func (s *Service) SchedulePayout(ctx context.Context, payeeID uuid.UUID) (*PayoutDTO, error) {
	if payeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payee id is required")
	}
	ctx = s.logg.WithPayeeID(ctx, payeeID.String())

	destination, err := s.preflight(ctx, payeeID)
	if err != nil {
		return nil, err
	}

	var payout *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.claim(ctx, tx, payeeID)
		return err
	})
	if err != nil {
		if errors.Is(err, errNothingClaimed) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientClaimable, "no unclaimed invoices").
				WithDetails(map[string]any{"reason": reasonNoUnclaimed})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim invoices")
	}
	ctx = s.logg.WithPayoutID(ctx, payout.ID.String())
	s.metrics.ObservePayout(string(enums.PayoutStatusPending))
	s.logg.Info(ctx, fmt.Sprintf("payout scheduled over %d invoices", len(payout.InvoiceIDs)))

	return s.send(ctx, payout, destination)
}

// HandleTransferPaid settles the payout behind a completed transfer.
// payoutID may be uuid.Nil when the transfer carried no metadata. A payout
// whose send failed without a provider verdict is settled too: the transfer
// went out after all.
func (s *Service) HandleTransferPaid(ctx context.Context, transferID string, payoutID uuid.UUID) error {
	payout, err := s.resolve(ctx, transferID, payoutID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithPayoutID(ctx, payout.ID.String())
	if payout.Status == enums.PayoutStatusPaid {
		return nil
	}
	from := []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusInTransit}
	switch {
	case unconfirmed(payout):
		from = append(from, enums.PayoutStatusFailed)
	case reopened(payout):
		// the invoices are back in the pool; freeze the payee before they
		// are paid a second time. The hold is the outcome, so the callback
		// is acknowledged.
		_ = s.placeHold(ctx, payout, reasonPaidAfterReopen, 0, 0)
		return nil
	case payout.Status == enums.PayoutStatusFailed:
		s.logg.Warn(ctx, "transfer paid for a rejected payout; leaving it failed")
		return nil
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		update := StatusUpdate{
			PayoutID:     payout.ID,
			From:         from,
			To:           enums.PayoutStatusPaid,
			ClearFailure: true,
			SettledAt:    &now,
			At:           now,
		}
		if transferID != "" {
			update.TransferID = &transferID
		}
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, update)
		if err != nil {
			return err
		}
		if !moved {
			return errNotMoved
		}
		payout.Status = enums.PayoutStatusPaid
		payout.SettledAt = &now
		payout.FailureReason = nil
		if transferID != "" {
			payout.ProviderTransferID = &transferID
		}
		return s.record(ctx, tx, payout, enums.LedgerEventTypePayoutPaid, enums.EventPayoutPaid, "")
	})
	if errors.Is(err, errNotMoved) {
		// a concurrent callback already moved it
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle payout")
	}
	s.metrics.ObservePayout(string(enums.PayoutStatusPaid))
	s.logg.Info(ctx, "payout paid")
	return nil
}

// HandleTransferFailed marks the payout failed. Invoices stay claimed until an
// operator retries or reopens it.
func (s *Service) HandleTransferFailed(ctx context.Context, transferID string, payoutID uuid.UUID, reason string) error {
	payout, err := s.resolve(ctx, transferID, payoutID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithPayoutID(ctx, payout.ID.String())
	if payout.Status == enums.PayoutStatusFailed {
		return nil
	}
	if reason == "" {
		reason = "transfer_failed"
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, StatusUpdate{
			PayoutID:      payout.ID,
			From:          []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusInTransit, enums.PayoutStatusPaid},
			To:            enums.PayoutStatusFailed,
			FailureReason: &reason,
			At:            now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return errNotMoved
		}
		payout.Status = enums.PayoutStatusFailed
		payout.FailureReason = &reason
		return s.record(ctx, tx, payout, enums.LedgerEventTypePayoutFailed, enums.EventPayoutFailed, reason)
	})
	if errors.Is(err, errNotMoved) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail payout")
	}
	s.metrics.ObservePayout(string(enums.PayoutStatusFailed))
	s.logg.Warn(ctx, "payout failed: "+reason)
	return nil
}

// RetryPayout sends a new transfer attempt for a failed payout with the same
// invoices. After an unconfirmed send the attempt number, and with it the
// provider idempotency key, is reused so a transfer that did go out is
// returned instead of created again.
func (s *Service) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*PayoutDTO, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithPayoutID(s.logg.WithPayeeID(ctx, payout.PayeeID.String()), payout.ID.String())
	if payout.Status != enums.PayoutStatusFailed || reopened(payout) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts that still hold invoices can be retried").
			WithDetails(map[string]any{"status": payout.Status})
	}

	destination, err := s.preflight(ctx, payout.PayeeID)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, payout); err != nil {
		return nil, err
	}

	nextAttempt := !unconfirmed(payout)
	now := s.now()
	moved, err := s.repo.UpdateStatus(ctx, StatusUpdate{
		PayoutID:          payout.ID,
		From:              []enums.PayoutStatus{enums.PayoutStatusFailed},
		To:                enums.PayoutStatusPending,
		ClearFailure:      true,
		IncrementAttempts: nextAttempt,
		At:                now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restart payout")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout changed concurrently").
			WithDetails(map[string]any{"retryable": true})
	}
	payout.Status = enums.PayoutStatusPending
	payout.FailureReason = nil
	if nextAttempt {
		payout.Attempts++
	}
	s.metrics.ObservePayout(string(enums.PayoutStatusPending))
	s.logg.Info(ctx, fmt.Sprintf("retrying payout, attempt %d", payout.Attempts))

	return s.send(ctx, payout, destination)
}

// ReopenPayout returns a failed payout's invoices to the unclaimed pool and
// zeroes its total. It refuses a payout whose transfer may still exist.
func (s *Service) ReopenPayout(ctx context.Context, payoutID uuid.UUID) (*PayoutDTO, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithPayoutID(ctx, payout.ID.String())
	if payout.Status != enums.PayoutStatusFailed || reopened(payout) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts can be reopened").
			WithDetails(map[string]any{"status": payout.Status})
	}
	if unconfirmed(payout) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transfer outcome unknown; retry the payout or wait for the provider").
			WithDetails(map[string]any{"reason": *payout.FailureReason})
	}

	now := s.now()
	releasedCents := payout.TotalCents
	var released int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkReopened(ctx, payout.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errNotMoved
		}
		released, err = s.invoices.WithTx(tx).Release(ctx, payout.ID)
		if err != nil {
			return err
		}
		reason := reasonReopened
		payout.FailureReason = &reason
		payout.TotalCents = 0
		payout.InvoiceIDs = []uuid.UUID{}
		_, err = s.ledger.Record(ctx, tx, ledger.RecordInput{
			PayoutID:    &payout.ID,
			PayeeID:     payout.PayeeID,
			Type:        enums.LedgerEventTypePayoutReopened,
			AmountCents: releasedCents,
			Currency:    payout.Currency,
			Metadata:    map[string]any{"released_invoices": released, "released_cents": releasedCents},
		})
		return err
	})
	if errors.Is(err, errNotMoved) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already reopened")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reopen payout")
	}
	s.logg.Info(ctx, fmt.Sprintf("payout reopened, %d invoices released", released))

	dto := ToPayoutDTO(*payout)
	return &dto, nil
}

// ReleaseHold lifts the invariant hold on a payee.
func (s *Service) ReleaseHold(ctx context.Context, payeeID uuid.UUID) error {
	released, err := s.repo.ReleaseHolds(ctx, payeeID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release payout hold")
	}
	if released == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no active payout hold")
	}
	s.logg.Info(s.logg.WithPayeeID(ctx, payeeID.String()), "payout hold released")
	return nil
}

// ListPayouts returns the payee's payouts, verifying each total on the way out.
func (s *Service) ListPayouts(ctx context.Context, payeeID uuid.UUID, limit int) ([]PayoutDTO, error) {
	rows, err := s.repo.ListByPayee(ctx, payeeID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	out := make([]PayoutDTO, 0, len(rows))
	for i := range rows {
		if err := s.verify(ctx, &rows[i]); err != nil {
			return nil, err
		}
		out = append(out, ToPayoutDTO(rows[i]))
	}
	return out, nil
}

// GetPayout loads one payout. A non-nil payeeID scopes the lookup to that
// payee; operators pass uuid.Nil.
func (s *Service) GetPayout(ctx context.Context, payoutID, payeeID uuid.UUID) (*PayoutDTO, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payeeID != uuid.Nil && payout.PayeeID != payeeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err := s.verify(ctx, payout); err != nil {
		return nil, err
	}
	dto := ToPayoutDTO(*payout)
	return &dto, nil
}

// preflight enforces holds and verification and resolves the destination.
func (s *Service) preflight(ctx context.Context, payeeID uuid.UUID) (string, error) {
	hold, err := s.repo.ActiveHold(ctx, payeeID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout hold")
	}
	if hold != nil {
		return "", pkgerrors.New(pkgerrors.CodeInconsistentInvariant, "payouts are on hold for this payee").
			WithDetails(map[string]any{"hold_id": hold.ID, "reason": hold.Reason})
	}

	eligible, err := s.eligibility.IsPayoutEligible(ctx, payeeID)
	if err != nil {
		return "", err
	}
	if !eligible {
		return "", pkgerrors.New(pkgerrors.CodeInsufficientClaimable, "payee not verified for payouts").
			WithDetails(map[string]any{"reason": reasonPayeeNotVerified})
	}
	return s.eligibility.DestinationAccount(ctx, payeeID)
}

func (s *Service) claim(ctx context.Context, tx *gorm.DB, payeeID uuid.UUID) (*models.Payout, error) {
	invoiceRepo := s.invoices.WithTx(tx)
	candidates, err := invoiceRepo.ListUnclaimed(ctx, payeeID, s.maxInvoices)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errNothingClaimed
	}

	payout := &models.Payout{
		PayeeID:  payeeID,
		Currency: s.currency,
		Status:   enums.PayoutStatusPending,
		Attempts: 1,
	}
	payoutRepo := s.repo.WithTx(tx)
	if err := payoutRepo.Create(ctx, payout); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, inv := range candidates {
		ids = append(ids, inv.ID)
	}
	claimed, err := invoiceRepo.Claim(ctx, payout.ID, ids)
	if err != nil {
		return nil, err
	}
	if claimed == 0 {
		return nil, errNothingClaimed
	}

	// another scheduler may have taken part of the candidate set
	total, count, err := invoiceRepo.SumByPayout(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	if count != claimed {
		return nil, fmt.Errorf("claimed %d invoices but %d are linked", claimed, count)
	}
	if total == 0 {
		// only zero-net rows; they wait for a payout that moves money
		return nil, errNothingClaimed
	}
	if err := payoutRepo.SetTotal(ctx, payout.ID, total); err != nil {
		return nil, err
	}
	payout.TotalCents = total
	payout.InvoiceIDs, err = invoiceRepo.IDsByPayout(ctx, payout.ID)
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, tx, payout, enums.LedgerEventTypePayoutRequested, enums.EventPayoutRequested, ""); err != nil {
		return nil, err
	}
	return payout, nil
}

// send issues the transfer for a pending payout and records the outcome.
func (s *Service) send(ctx context.Context, payout *models.Payout, destination string) (*PayoutDTO, error) {
	transfer, err := s.gateway.CreateTransfer(ctx, provider.TransferRequest{
		IdempotencyKey:       fmt.Sprintf("payout:%s:%d", payout.ID, payout.Attempts),
		AmountCents:          payout.TotalCents,
		Currency:             payout.Currency,
		DestinationAccountID: destination,
		Metadata: map[string]string{
			provider.MetadataPayoutID: payout.ID.String(),
			provider.MetadataPayeeID:  payout.PayeeID.String(),
		},
	})
	if err != nil {
		s.logg.Error(ctx, "payout transfer failed", err)
		if failErr := s.markSendFailed(ctx, payout, err); failErr != nil {
			s.logg.Error(ctx, "failed to record payout failure", failErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payout transfer failed").
			WithDetails(map[string]any{"payout_id": payout.ID})
	}

	now := s.now()
	moved, err := s.repo.UpdateStatus(ctx, StatusUpdate{
		PayoutID:   payout.ID,
		From:       []enums.PayoutStatus{enums.PayoutStatusPending},
		To:         enums.PayoutStatusInTransit,
		TransferID: &transfer.ID,
		At:         now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payout in transit")
	}
	if moved {
		payout.Status = enums.PayoutStatusInTransit
		payout.ProviderTransferID = &transfer.ID
		s.metrics.ObservePayout(string(enums.PayoutStatusInTransit))
		s.logg.Info(ctx, "payout in transit as "+transfer.ID)
	} else {
		// the transfer webhook won the race
		current, err := s.load(ctx, payout.ID)
		if err != nil {
			return nil, err
		}
		current.InvoiceIDs = payout.InvoiceIDs
		payout = current
	}

	dto := ToPayoutDTO(*payout)
	return &dto, nil
}

func (s *Service) markSendFailed(ctx context.Context, payout *models.Payout, cause error) error {
	prefix := reasonUnconfirmed
	if provider.IsPermanent(cause) {
		prefix = reasonRejected
	}
	reason := prefix + ": " + cause.Error()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, StatusUpdate{
			PayoutID:      payout.ID,
			From:          []enums.PayoutStatus{enums.PayoutStatusPending},
			To:            enums.PayoutStatusFailed,
			FailureReason: &reason,
			At:            s.now(),
		})
		if err != nil || !moved {
			return err
		}
		payout.Status = enums.PayoutStatusFailed
		payout.FailureReason = &reason
		s.metrics.ObservePayout(string(enums.PayoutStatusFailed))
		return s.record(ctx, tx, payout, enums.LedgerEventTypePayoutFailed, enums.EventPayoutFailed, reason)
	})
}

// verify compares the stored total with the claimed invoices. A mismatch
// freezes the payee.
func (s *Service) verify(ctx context.Context, payout *models.Payout) error {
	total, _, err := s.invoices.SumByPayout(ctx, payout.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum payout invoices")
	}
	if payout.InvoiceIDs == nil {
		ids, err := s.invoices.IDsByPayout(ctx, payout.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout invoices")
		}
		payout.InvoiceIDs = ids
	}
	if total == payout.TotalCents {
		return nil
	}
	return s.placeHold(ctx, payout, reasonTotalMismatch, payout.TotalCents, total)
}

func (s *Service) placeHold(ctx context.Context, payout *models.Payout, reason string, expected, actual int64) error {
	ctx = s.logg.WithPayoutID(s.logg.WithPayeeID(ctx, payout.PayeeID.String()), payout.ID.String())
	hold := &models.PayoutHold{
		PayeeID:       payout.PayeeID,
		PayoutID:      &payout.ID,
		Reason:        reason,
		ExpectedCents: expected,
		ActualCents:   actual,
	}
	invariant := pkgerrors.New(pkgerrors.CodeInconsistentInvariant,
		fmt.Sprintf("payout %s: expected %d, found %d", reason, expected, actual))

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		holds := s.repo.WithTx(tx)
		existing, err := holds.ActiveHold(ctx, payout.PayeeID)
		if err != nil {
			return err
		}
		if existing != nil {
			hold = existing
			return nil
		}
		if err := holds.CreateHold(ctx, hold); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutHoldPlaced,
			AggregateType: enums.AggregatePayee,
			AggregateID:   payout.PayeeID,
			Actor:         outbox.SystemActor(),
			OccurredAt:    s.now(),
			Data: payloads.PayoutHoldPlacedEvent{
				HoldID:        hold.ID,
				PayeeID:       payout.PayeeID,
				PayoutID:      &payout.ID,
				Reason:        hold.Reason,
				ExpectedCents: hold.ExpectedCents,
				ActualCents:   hold.ActualCents,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "failed to place payout hold", err)
	}
	s.logg.Error(ctx, "payout invariant violated, payee placed on hold", invariant)
	return invariant
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, payout *models.Payout, ledgerType enums.LedgerEventType, eventType enums.OutboxEventType, reason string) error {
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
		PayoutID:    &payout.ID,
		PayeeID:     payout.PayeeID,
		Type:        ledgerType,
		AmountCents: payout.TotalCents,
		Currency:    payout.Currency,
		Metadata:    map[string]any{"attempt": payout.Attempts},
	}); err != nil {
		return err
	}
	var transferID string
	if payout.ProviderTransferID != nil {
		transferID = *payout.ProviderTransferID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    s.now(),
		Data: payloads.PayoutStatusEvent{
			PayoutID:           payout.ID,
			PayeeID:            payout.PayeeID,
			Status:             payout.Status,
			TotalCents:         payout.TotalCents,
			Currency:           payout.Currency,
			InvoiceIDs:         payout.InvoiceIDs,
			ProviderTransferID: transferID,
			FailureReason:      reason,
			Attempt:            payout.Attempts,
		},
	})
}

func (s *Service) resolve(ctx context.Context, transferID string, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID != uuid.Nil {
		return s.load(ctx, payoutID)
	}
	if transferID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer id or payout id is required")
	}
	payout, err := s.repo.FindByTransferID(ctx, transferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").
				WithDetails(map[string]any{"transfer_id": transferID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout")
	}
	return payout, nil
}

func (s *Service) load(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout")
	}
	return payout, nil
}

var errNotMoved = errors.New("payout status already moved")
