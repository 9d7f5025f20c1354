package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)

// Client holds the process-wide Stripe setup: the global API key and backend
// used by the resource packages, plus the webhook signing secret.
type Client struct {
	livemode      bool
	signingSecret string
}

// NewClient checks that the key matches the configured environment and
// installs it. The SDK's own network retries are disabled because gateway
// calls already go through provider.Retrying.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := strings.TrimSpace(strings.ToLower(cfg.Environment()))
	if env != testEnv && env != liveEnv {
		return nil, errInvalidStripeEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	}
	if err := checkKeyMode(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     sdkLogger{ctx: ctx, logg: logg},
	}))

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{livemode: env == liveEnv, signingSecret: secret}, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Livemode reports whether the client talks to live Stripe. Webhook events
// carry the same flag, so a test-mode event reaching a live deployment (or
// the reverse) can be told apart.
func (c *Client) Livemode() bool {
	return c != nil && c.livemode
}

// checkKeyMode accepts secret (sk_) and restricted (rk_) keys whose mode
// matches env.
func checkKeyMode(env, key string) error {
	for _, prefix := range []string{"sk_", "rk_"} {
		if strings.HasPrefix(key, prefix+env+"_") {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a %s secret key (sk_%s/rk_%s)", env, env, env, env)
}

// sdkLogger routes the SDK's warnings and errors into the service log.
// Request-level info and debug lines are dropped.
type sdkLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l sdkLogger) Debugf(string, ...any) {}

func (l sdkLogger) Infof(string, ...any) {}

func (l sdkLogger) Warnf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Warn(l.ctx, "stripe sdk: "+fmt.Sprintf(format, v...))
	}
}

func (l sdkLogger) Errorf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Error(l.ctx, "stripe sdk error", fmt.Errorf(format, v...))
	}
}
