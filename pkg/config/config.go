package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Fees         FeesConfig
	Payouts      PayoutsConfig
	Retry        RetryConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"GEARLEDGER_APP_ENV" required:"true"`
	Port         string   `envconfig:"GEARLEDGER_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"GEARLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"GEARLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"GEARLEDGER_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"GEARLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GEARLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN       string        `envconfig:"GEARLEDGER_DB_DSN"`
	SlowQuery time.Duration `envconfig:"GEARLEDGER_DB_SLOW_QUERY" default:"250ms"`

	LegacyHost     string `envconfig:"GEARLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"GEARLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GEARLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"GEARLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"GEARLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"GEARLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GEARLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GEARLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GEARLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GEARLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GEARLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GEARLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"GEARLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"GEARLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GEARLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GEARLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GEARLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GEARLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GEARLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the hosted auth provider.
type JWTConfig struct {
	Secret   string `envconfig:"GEARLEDGER_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"GEARLEDGER_JWT_ISSUER" required:"true"`
	Audience string `envconfig:"GEARLEDGER_JWT_AUDIENCE" default:"authenticated"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GEARLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"GEARLEDGER_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	WebhookLease          time.Duration `envconfig:"GEARLEDGER_EVENTING_WEBHOOK_LEASE" default:"2m"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GEARLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GEARLEDGER_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PaymentsTopic     string `envconfig:"GEARLEDGER_PUBSUB_PAYMENTS_TOPIC" default:"gl-payment-events"`
	NotificationTopic string `envconfig:"GEARLEDGER_PUBSUB_NOTIFICATION_TOPIC" default:"gl-notification-events"`
	ListingsTopic     string `envconfig:"GEARLEDGER_PUBSUB_LISTINGS_TOPIC" default:"gl-listing-events"`
	OperatorTopic     string `envconfig:"GEARLEDGER_PUBSUB_OPERATOR_TOPIC" default:"gl-operator-alerts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GEARLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GEARLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GEARLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"GEARLEDGER_STRIPE_API_KEY"`
	Secret   string `envconfig:"GEARLEDGER_STRIPE_SECRET"`
	Env      string `envconfig:"GEARLEDGER_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"GEARLEDGER_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	SuccessURL        string        `envconfig:"GEARLEDGER_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL         string        `envconfig:"GEARLEDGER_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
	PendingTTL        time.Duration `envconfig:"GEARLEDGER_CHECKOUT_PENDING_TTL" default:"24h"`
	DefaultBoostDays  int           `envconfig:"GEARLEDGER_CHECKOUT_DEFAULT_BOOST_DAYS" default:"7"`
	ExpireOnCancel    bool          `envconfig:"GEARLEDGER_CHECKOUT_EXPIRE_SESSION_ON_CANCEL" default:"true"`
	ConnectReturnURL  string        `envconfig:"GEARLEDGER_CONNECT_RETURN_URL" default:"http://localhost:3000/settings/payouts?onboarding=complete"`
	ConnectRefreshURL string        `envconfig:"GEARLEDGER_CONNECT_REFRESH_URL" default:"http://localhost:3000/settings/payouts?onboarding=refresh"`
	ConnectCountry    string        `envconfig:"GEARLEDGER_CONNECT_COUNTRY" default:"US"`
}

// FeesConfig carries decimal rates as strings so they parse without float rounding.
type FeesConfig struct {
	BoostRate          string `envconfig:"GEARLEDGER_FEE_RATE_BOOST" default:"0.15"`
	PartPurchaseRate   string `envconfig:"GEARLEDGER_FEE_RATE_PART_PURCHASE" default:"0.15"`
	ServicePaymentRate string `envconfig:"GEARLEDGER_FEE_RATE_SERVICE_PAYMENT" default:"0.15"`
}

type PayoutsConfig struct {
	AutoSchedule bool `envconfig:"GEARLEDGER_CRON_AUTO_PAYOUTS" default:"false"`
	BatchLimit   int  `envconfig:"GEARLEDGER_PAYOUTS_BATCH_LIMIT" default:"200"`
}

type RetryConfig struct {
	MaxAttempts uint64        `envconfig:"GEARLEDGER_PROVIDER_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"GEARLEDGER_PROVIDER_RETRY_BASE_DELAY" default:"200ms"`
	MaxDelay    time.Duration `envconfig:"GEARLEDGER_PROVIDER_RETRY_MAX_DELAY" default:"3s"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"GEARLEDGER_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"GEARLEDGER_CRON_LOCK_TTL" default:"14m"`
	DisabledJobs    []string      `envconfig:"GEARLEDGER_CRON_DISABLED_JOBS"`
	OutboxRetention time.Duration `envconfig:"GEARLEDGER_CRON_OUTBOX_RETENTION" default:"720h"`
}

// RateLimitConfig throttles money-moving writes per caller and per client IP.
type RateLimitConfig struct {
	Window  time.Duration `envconfig:"GEARLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
	PerUser int           `envconfig:"GEARLEDGER_RATE_LIMIT_PER_USER" default:"20"`
	PerIP   int           `envconfig:"GEARLEDGER_RATE_LIMIT_PER_IP" default:"60"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
