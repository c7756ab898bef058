package config

const (
	EnvPrefix = "TRYON"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	QueueDriverRedis  = "redis"
	QueueDriverPubSub = "pubsub"
)

const (
	EnvAppEnv           = "TRYON_APP_ENV"
	EnvPort             = "TRYON_APP_PORT"
	EnvDBDSN            = "TRYON_DB_DSN"
	EnvDBHost           = "TRYON_DB_HOST"
	EnvDBUser           = "TRYON_DB_USER"
	EnvDBName           = "TRYON_DB_NAME"
	EnvRedisURL         = "TRYON_REDIS_URL"
	EnvJWTSecret        = "TRYON_JWT_SECRET"
	EnvJWTIssuer        = "TRYON_JWT_ISSUER"
	EnvQueueDriver      = "TRYON_QUEUE_DRIVER"
	EnvPaddleSecret     = "TRYON_PADDLE_WEBHOOK_SECRET"
	EnvOveragePrices    = "TRYON_OVERAGE_PRICES"
	EnvRateLimitTimeout = "TRYON_RATE_LIMIT_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
