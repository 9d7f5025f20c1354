package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory Gateway used by service tests and local runs without
// provider credentials. Err* fields force the matching call to fail;
// ErrAfterTransfer fails the call after the transfer was created, like a
// response lost on the way back. Transfers honor idempotency keys.
type Fake struct {
	mu sync.Mutex

	Sessions  map[string]CheckoutSession
	Transfers []TransferRequest
	Accounts  map[string]ConnectedAccount
	Keys      []string

	ErrCreateSession error
	ErrGetSession    error
	ErrTransfer      error
	ErrAfterTransfer error
	ErrAccount       error
	ErrLink          error

	transfersByKey map[string]Transfer
}

var _ Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Sessions:       map[string]CheckoutSession{},
		Accounts:       map[string]ConnectedAccount{},
		transfersByKey: map[string]Transfer{},
	}
}

func (f *Fake) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, req.IdempotencyKey)
	if f.ErrCreateSession != nil {
		return CheckoutSession{}, f.ErrCreateSession
	}
	id := "cs_test_" + uuid.NewString()
	session := CheckoutSession{
		ID:            id,
		URL:           "https://checkout.test/pay/" + id,
		Status:        SessionStatusOpen,
		PaymentStatus: PaymentStatusUnpaid,
		AmountTotal:   req.AmountCents,
		Metadata:      req.Metadata,
	}
	f.Sessions[id] = session
	return session, nil
}

func (f *Fake) GetCheckoutSession(_ context.Context, sessionID string) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrGetSession != nil {
		return CheckoutSession{}, f.ErrGetSession
	}
	session, ok := f.Sessions[sessionID]
	if !ok {
		return CheckoutSession{}, Permanent("get_checkout_session", fmt.Errorf("no such session %s", sessionID))
	}
	return session, nil
}

// MarkPaid flips a stored session to complete and paid.
func (f *Fake) MarkPaid(sessionID, chargeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.Sessions[sessionID]
	session.Status = SessionStatusComplete
	session.PaymentStatus = PaymentStatusPaid
	session.PaymentIntentID = chargeID
	f.Sessions[sessionID] = session
}

func (f *Fake) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.Sessions[sessionID]; ok {
		session.Status = SessionStatusExpired
		f.Sessions[sessionID] = session
	}
	return nil
}

func (f *Fake) CreateTransfer(_ context.Context, req TransferRequest) (Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, req.IdempotencyKey)
	if f.ErrTransfer != nil {
		return Transfer{}, f.ErrTransfer
	}
	if existing, ok := f.transfersByKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return existing, nil
	}
	f.Transfers = append(f.Transfers, req)
	transfer := Transfer{
		ID:          fmt.Sprintf("tr_test_%d", len(f.Transfers)),
		AmountCents: req.AmountCents,
		Destination: req.DestinationAccountID,
	}
	if req.IdempotencyKey != "" {
		f.transfersByKey[req.IdempotencyKey] = transfer
	}
	if f.ErrAfterTransfer != nil {
		return Transfer{}, f.ErrAfterTransfer
	}
	return transfer, nil
}

// LastTransferID returns the id of the most recent transfer, or "".
func (f *Fake) LastTransferID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Transfers) == 0 {
		return ""
	}
	return fmt.Sprintf("tr_test_%d", len(f.Transfers))
}

func (f *Fake) CreateConnectedAccount(_ context.Context, req AccountRequest) (ConnectedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, req.IdempotencyKey)
	if f.ErrAccount != nil {
		return ConnectedAccount{}, f.ErrAccount
	}
	account := ConnectedAccount{ID: "acct_test_" + req.PayeeID.String()[:8]}
	f.Accounts[account.ID] = account
	return account, nil
}

func (f *Fake) CreateOnboardingLink(_ context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrLink != nil {
		return "", f.ErrLink
	}
	return "https://connect.test/onboard/" + accountID, nil
}

// TransferCount returns the number of successful transfers.
func (f *Fake) TransferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transfers)
}
