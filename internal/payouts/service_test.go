package payouts

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/internal/invoices"
	"github.com/angelmondragon/gearledger-backend/internal/ledger"
	"github.com/angelmondragon/gearledger-backend/internal/provider"
	dbpkg "github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
)

type stubEligibility struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]string
}

func (s *stubEligibility) verify(payeeID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[payeeID] = "acct_" + payeeID.String()[:8]
}

func (s *stubEligibility) IsPayoutEligible(_ context.Context, payeeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[payeeID]
	return ok, nil
}

func (s *stubEligibility) DestinationAccount(_ context.Context, payeeID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[payeeID], nil
}

type harness struct {
	db       *gorm.DB
	svc      *Service
	repo     Repository
	invoices invoices.Repository
	ledger   ledger.Service
	outbox   *outbox.Repository
	gateway  *provider.Fake
	eligible *stubEligibility
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "payouts-test", Output: io.Discard})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	h := &harness{
		db:       db,
		repo:     NewRepository(db),
		invoices: invoices.NewRepository(db),
		ledger:   ledgerSvc,
		outbox:   outbox.NewRepository(db),
		gateway:  provider.NewFake(),
		eligible: &stubEligibility{accounts: map[uuid.UUID]string{}},
	}
	h.svc, err = NewService(ServiceParams{
		Repo:              h.repo,
		Invoices:          h.invoices,
		Ledger:            ledgerSvc,
		Outbox:            outbox.NewService(h.outbox, logg),
		Eligibility:       h.eligible,
		Gateway:           h.gateway,
		TransactionRunner: dbpkg.FromConn(db),
		Logger:            logg,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedInvoices(t *testing.T, payeeID uuid.UUID, nets ...int64) int64 {
	t.Helper()
	var sum int64
	for _, net := range nets {
		inv := models.Invoice{
			OrderID:          uuid.New(),
			PayeeID:          payeeID,
			GrossCents:       net + 10,
			PlatformFeeCents: 10,
			PayeeNetCents:    net,
			Currency:         "usd",
			FeeRate:          "0.15",
		}
		require.NoError(t, h.invoices.Create(context.Background(), &inv))
		sum += net
	}
	return sum
}

func (h *harness) verifiedPayee(t *testing.T, nets ...int64) (uuid.UUID, int64) {
	t.Helper()
	payee := uuid.New()
	h.eligible.verify(payee)
	return payee, h.seedInvoices(t, payee, nets...)
}

func claimReason(t *testing.T, err error) string {
	t.Helper()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientClaimable), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	reason, _ := details["reason"].(string)
	return reason
}

func TestScheduleBackToBackClaimsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 254, 127, 850)

	payout, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusInTransit, payout.Status)
	assert.Equal(t, sum, payout.TotalCents)
	assert.Len(t, payout.InvoiceIDs, 3)
	require.NotNil(t, payout.ProviderTransferID)
	assert.Equal(t, "tr_test_1", *payout.ProviderTransferID)

	require.Len(t, h.gateway.Transfers, 1)
	transfer := h.gateway.Transfers[0]
	assert.Equal(t, "payout:"+payout.ID.String()+":1", transfer.IdempotencyKey)
	assert.Equal(t, payout.ID.String(), transfer.Metadata[provider.MetadataPayoutID])
	assert.Equal(t, "acct_"+payee.String()[:8], transfer.DestinationAccountID)
	assert.Equal(t, sum, transfer.AmountCents)

	_, err = h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	assert.Equal(t, reasonNoUnclaimed, claimReason(t, err))
	assert.Equal(t, 1, h.gateway.TransferCount())

	var payoutRows int64
	require.NoError(t, h.db.Model(&models.Payout{}).Count(&payoutRows).Error)
	assert.Equal(t, int64(1), payoutRows)

	events, err := h.outbox.ListByAggregate(nil, payout.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPayoutRequested, events[0].EventType)
}

func TestConcurrentSchedulesNeverDoubleClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 100, 200, 300, 400, 500)

	const callers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*PayoutDTO
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.SchedulePayout(ctx, payee)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}()
	}
	wg.Wait()

	require.Len(t, results, 1)
	assert.Equal(t, sum, results[0].TotalCents)
	for _, err := range errs {
		assert.Equal(t, reasonNoUnclaimed, claimReason(t, err))
	}

	total, count, err := h.invoices.SumByPayout(ctx, results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, sum, total)
	assert.Equal(t, int64(5), count)
}

func TestScheduleRequiresVerifiedPayee(t *testing.T) {
	h := newHarness(t)
	payee := uuid.New()
	h.seedInvoices(t, payee, 500)

	_, err := h.svc.SchedulePayout(context.Background(), payee)
	require.Error(t, err)
	assert.Equal(t, reasonPayeeNotVerified, claimReason(t, err))
	assert.Zero(t, h.gateway.TransferCount())
}

func TestZeroNetInvoicesSettleWithNextPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	payee, _ := h.verifiedPayee(t, 0)
	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	assert.Equal(t, reasonNoUnclaimed, claimReason(t, err))
	assert.Equal(t, 0, h.gateway.TransferCount())

	var open int64
	require.NoError(t, h.db.Model(&models.Invoice{}).Where("payee_id = ? AND payout_id IS NULL", payee).Count(&open).Error)
	assert.Equal(t, int64(1), open)

	sum := h.seedInvoices(t, payee, 400)
	payout, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, sum, payout.TotalCents)
	assert.Len(t, payout.InvoiceIDs, 2)
	assert.Equal(t, sum, h.gateway.Transfers[0].AmountCents)

	require.NoError(t, h.db.Model(&models.Invoice{}).Where("payee_id = ? AND payout_id IS NULL", payee).Count(&open).Error)
	assert.Zero(t, open)
}

func TestFailedTransferKeepsInvoicesClaimed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 254, 127, 850)
	h.gateway.ErrTransfer = provider.Permanent("create_transfer", errors.New("account closed"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	details := pkgerrors.As(err).Details().(map[string]any)
	payoutID := details["payout_id"].(uuid.UUID)

	stored, err := h.repo.FindByID(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "account closed")

	total, count, err := h.invoices.SumByPayout(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, sum, total)
	assert.Equal(t, int64(3), count)

	h.gateway.ErrTransfer = nil
	_, err = h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	assert.Equal(t, reasonNoUnclaimed, claimReason(t, err))

	history, err := h.ledger.PayoutHistory(ctx, payoutID)
	require.NoError(t, err)
	types := make([]enums.LedgerEventType, 0, len(history))
	for _, ev := range history {
		types = append(types, ev.Type)
	}
	assert.ElementsMatch(t, []enums.LedgerEventType{enums.LedgerEventTypePayoutRequested, enums.LedgerEventTypePayoutFailed}, types)
}

func TestRetryAfterRejectedTransferUsesNewAttemptKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 400, 600)
	h.gateway.ErrTransfer = provider.Permanent("create_transfer", errors.New("destination disabled"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	payoutID := pkgerrors.As(err).Details().(map[string]any)["payout_id"].(uuid.UUID)

	h.gateway.ErrTransfer = nil
	retried, err := h.svc.RetryPayout(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusInTransit, retried.Status)
	assert.Equal(t, 2, retried.Attempts)
	assert.Equal(t, sum, retried.TotalCents)
	assert.Nil(t, retried.FailureReason)
	assert.Contains(t, h.gateway.Keys, "payout:"+payoutID.String()+":2")

	_, err = h.svc.RetryPayout(ctx, payoutID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestLostTransferResponseNeverPaysTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 400, 200)
	h.gateway.ErrAfterTransfer = provider.Transient("create_transfer", errors.New("read timeout"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	payoutID := pkgerrors.As(err).Details().(map[string]any)["payout_id"].(uuid.UUID)
	stored, err := h.repo.FindByID(ctx, payoutID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusFailed, stored.Status)
	assert.Contains(t, *stored.FailureReason, reasonUnconfirmed)

	// the invoices may already be paid out, so they cannot go back to the pool
	_, err = h.svc.ReopenPayout(ctx, payoutID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// an operator retry replays the original attempt instead of a new transfer
	h.gateway.ErrAfterTransfer = nil
	retried, err := h.svc.RetryPayout(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, 1, retried.Attempts)
	assert.Equal(t, 1, h.gateway.TransferCount())
	assert.NotContains(t, h.gateway.Keys, "payout:"+payoutID.String()+":2")
	assert.Equal(t, sum, retried.TotalCents)
}

func TestPaidCallbackSettlesUnconfirmedPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, _ := h.verifiedPayee(t, 600)
	h.gateway.ErrAfterTransfer = provider.Transient("create_transfer", errors.New("read timeout"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	payoutID := pkgerrors.As(err).Details().(map[string]any)["payout_id"].(uuid.UUID)
	transferID := h.gateway.LastTransferID()
	require.NotEmpty(t, transferID)

	require.NoError(t, h.svc.HandleTransferPaid(ctx, transferID, payoutID))
	stored, err := h.repo.FindByID(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, stored.Status)
	assert.Nil(t, stored.FailureReason)
	require.NotNil(t, stored.ProviderTransferID)
	assert.Equal(t, transferID, *stored.ProviderTransferID)

	h.gateway.ErrAfterTransfer = nil
	_, err = h.svc.RetryPayout(ctx, payoutID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 1, h.gateway.TransferCount())
}

func TestPaidCallbackAfterReopenPlacesHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, _ := h.verifiedPayee(t, 300)
	h.gateway.ErrTransfer = provider.Permanent("create_transfer", errors.New("bad destination"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	payoutID := pkgerrors.As(err).Details().(map[string]any)["payout_id"].(uuid.UUID)
	_, err = h.svc.ReopenPayout(ctx, payoutID)
	require.NoError(t, err)

	require.NoError(t, h.svc.HandleTransferPaid(ctx, "tr_late", payoutID))
	hold, err := h.repo.ActiveHold(ctx, payee)
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.Equal(t, reasonPaidAfterReopen, hold.Reason)

	h.gateway.ErrTransfer = nil
	_, err = h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentInvariant))
}

func TestReopenPayoutReleasesInvoices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, sum := h.verifiedPayee(t, 300, 700)
	h.gateway.ErrTransfer = provider.Permanent("create_transfer", errors.New("bad destination"))

	_, err := h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	payoutID := pkgerrors.As(err).Details().(map[string]any)["payout_id"].(uuid.UUID)

	reopenedPayout, err := h.svc.ReopenPayout(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, reopenedPayout.Status)
	require.NotNil(t, reopenedPayout.FailureReason)
	assert.Equal(t, reasonReopened, *reopenedPayout.FailureReason)

	assert.Zero(t, reopenedPayout.TotalCents)
	_, count, err := h.invoices.SumByPayout(ctx, payoutID)
	require.NoError(t, err)
	assert.Zero(t, count)

	history, err := h.ledger.PayoutHistory(ctx, payoutID)
	require.NoError(t, err)
	recorded := false
	for _, ev := range history {
		if ev.Type == enums.LedgerEventTypePayoutReopened {
			recorded = true
			assert.Equal(t, sum, ev.AmountCents)
			assert.Contains(t, string(ev.Metadata), `"released_cents":`)
		}
	}
	assert.True(t, recorded, "reopen must be recorded in the ledger")

	_, err = h.svc.ReopenPayout(ctx, payoutID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = h.svc.RetryPayout(ctx, payoutID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// a zeroed total still matches its (empty) invoice set
	_, err = h.svc.GetPayout(ctx, payoutID, payee)
	require.NoError(t, err)
	hold, err := h.repo.ActiveHold(ctx, payee)
	require.NoError(t, err)
	assert.Nil(t, hold)

	h.gateway.ErrTransfer = nil
	next, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, sum, next.TotalCents)
	assert.NotEqual(t, payoutID, next.ID)
}

func TestTransferCallbacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, _ := h.verifiedPayee(t, 500)

	payout, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	transferID := *payout.ProviderTransferID

	require.NoError(t, h.svc.HandleTransferPaid(ctx, transferID, uuid.Nil))
	require.NoError(t, h.svc.HandleTransferPaid(ctx, transferID, payout.ID))

	stored, err := h.repo.FindByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, stored.Status)
	assert.NotNil(t, stored.SettledAt)

	require.NoError(t, h.svc.HandleTransferFailed(ctx, transferID, uuid.Nil, "reversed"))
	stored, err = h.repo.FindByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, stored.Status)
	assert.Equal(t, "reversed", *stored.FailureReason)

	events, err := h.outbox.ListByAggregate(nil, payout.ID)
	require.NoError(t, err)
	got := make([]enums.OutboxEventType, 0, len(events))
	for _, ev := range events {
		got = append(got, ev.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventPayoutRequested, enums.EventPayoutPaid, enums.EventPayoutFailed}, got)

	err = h.svc.HandleTransferPaid(ctx, "tr_missing", uuid.Nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestTotalMismatchPlacesHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, _ := h.verifiedPayee(t, 250, 250)

	payout, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.Payout{}).Where("id = ?", payout.ID).Update("total_cents", 9999).Error)

	_, err = h.svc.GetPayout(ctx, payout.ID, payee)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentInvariant))

	_, err = h.svc.ListPayouts(ctx, payee, 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentInvariant))

	hold, err := h.repo.ActiveHold(ctx, payee)
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.Equal(t, int64(9999), hold.ExpectedCents)
	assert.Equal(t, int64(500), hold.ActualCents)

	events, err := h.outbox.ListByAggregate(nil, payee)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPayoutHoldPlaced, events[0].EventType)

	h.seedInvoices(t, payee, 100)
	_, err = h.svc.SchedulePayout(ctx, payee)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistentInvariant))

	require.NoError(t, h.svc.ReleaseHold(ctx, payee))
	err = h.svc.ReleaseHold(ctx, payee)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	next, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, int64(100), next.TotalCents)
}

func TestGetPayoutScopedToPayee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payee, _ := h.verifiedPayee(t, 500)
	payout, err := h.svc.SchedulePayout(ctx, payee)
	require.NoError(t, err)

	_, err = h.svc.GetPayout(ctx, payout.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	got, err := h.svc.GetPayout(ctx, payout.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, got.InvoiceIDs, 1)
}
