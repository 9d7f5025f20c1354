package provider

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 3 * time.Second
)

// RetryPolicy bounds exponential backoff for provider and bookkeeping calls.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig maps retry settings, filling defaults for zero values.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}.normalize()
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	p = p.normalize()
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	return retry.WithMaxRetries(p.MaxAttempts-1, b)
}

// Do runs fn until it succeeds, shouldRetry rejects the error, the attempts
// are exhausted or ctx is done. The last error from fn is returned.
func (p RetryPolicy) Do(ctx context.Context, shouldRetry func(error) bool, fn func(context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Retrying decorates a Gateway so transient failures are retried. Every
// request carries an idempotency key, so replays are safe on the provider side.
type Retrying struct {
	next   Gateway
	policy RetryPolicy
}

var _ Gateway = (*Retrying)(nil)

func NewRetrying(next Gateway, policy RetryPolicy) *Retrying {
	return &Retrying{next: next, policy: policy.normalize()}
}

func (r *Retrying) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	var out CheckoutSession
	err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		var err error
		out, err = r.next.CreateCheckoutSession(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	var out CheckoutSession
	err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		var err error
		out, err = r.next.GetCheckoutSession(ctx, sessionID)
		return err
	})
	return out, err
}

func (r *Retrying) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	return r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		return r.next.ExpireCheckoutSession(ctx, sessionID)
	})
}

func (r *Retrying) CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	var out Transfer
	err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		var err error
		out, err = r.next.CreateTransfer(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) CreateConnectedAccount(ctx context.Context, req AccountRequest) (ConnectedAccount, error) {
	var out ConnectedAccount
	err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		var err error
		out, err = r.next.CreateConnectedAccount(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	var out string
	err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		var err error
		out, err = r.next.CreateOnboardingLink(ctx, accountID)
		return err
	})
	return out, err
}
