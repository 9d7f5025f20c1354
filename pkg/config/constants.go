package config

const (
	EnvPrefix = "GEARLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "GEARLEDGER_APP_ENV"
	EnvPort     = "GEARLEDGER_APP_PORT"
	EnvDBDSN    = "GEARLEDGER_DB_DSN"
	EnvDBHost   = "GEARLEDGER_DB_HOST"
	EnvDBUser   = "GEARLEDGER_DB_USER"
	EnvDBName   = "GEARLEDGER_DB_NAME"
	EnvDBPass   = "GEARLEDGER_DB_PASSWORD"
	EnvRedisURL = "GEARLEDGER_REDIS_URL"

	EnvJWTSecret = "GEARLEDGER_JWT_SECRET"
	EnvJWTIssuer = "GEARLEDGER_JWT_ISSUER"

	EnvFeeRateBoost          = "GEARLEDGER_FEE_RATE_BOOST"
	EnvFeeRatePartPurchase   = "GEARLEDGER_FEE_RATE_PART_PURCHASE"
	EnvFeeRateServicePayment = "GEARLEDGER_FEE_RATE_SERVICE_PAYMENT"
	EnvCheckoutPendingTTL    = "GEARLEDGER_CHECKOUT_PENDING_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
