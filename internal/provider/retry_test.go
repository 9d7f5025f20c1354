package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flakyGateway struct {
	*Fake
	failures int
	calls    int
	err      error
}

func (g *flakyGateway) CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	g.calls++
	if g.calls <= g.failures {
		return Transfer{}, g.err
	}
	return g.Fake.CreateTransfer(ctx, req)
}

func testPolicy(attempts uint64) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryingRetriesTransientFailures(t *testing.T) {
	gw := &flakyGateway{Fake: NewFake(), failures: 2, err: Transient("create_transfer", errors.New("503"))}
	r := NewRetrying(gw, testPolicy(3))

	transfer, err := r.CreateTransfer(context.Background(), TransferRequest{IdempotencyKey: "payout:x:1", AmountCents: 500})
	require.NoError(t, err)
	require.Equal(t, int64(500), transfer.AmountCents)
	require.Equal(t, 3, gw.calls)
}

func TestRetryingStopsAfterMaxAttempts(t *testing.T) {
	gw := &flakyGateway{Fake: NewFake(), failures: 10, err: Transient("create_transfer", errors.New("timeout"))}
	r := NewRetrying(gw, testPolicy(3))

	_, err := r.CreateTransfer(context.Background(), TransferRequest{})
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, 3, gw.calls)
}

func TestRetryingDoesNotRetryPermanentFailures(t *testing.T) {
	gw := &flakyGateway{Fake: NewFake(), failures: 10, err: Permanent("create_transfer", errors.New("no such destination"))}
	r := NewRetrying(gw, testPolicy(5))

	_, err := r.CreateTransfer(context.Background(), TransferRequest{})
	require.ErrorIs(t, err, ErrPermanent)
	require.Equal(t, 1, gw.calls)
}

func TestPolicyFromConfigDefaults(t *testing.T) {
	p := RetryPolicy{}.normalize()
	require.Equal(t, uint64(defaultMaxAttempts), p.MaxAttempts)
	require.Equal(t, defaultBaseDelay, p.BaseDelay)
	require.Equal(t, defaultMaxDelay, p.MaxDelay)
}

func TestCheckoutSessionOrderID(t *testing.T) {
	session := CheckoutSession{Metadata: map[string]string{MetadataOrderID: "not-a-uuid"}}
	_, ok := session.OrderID()
	require.False(t, ok)
}
