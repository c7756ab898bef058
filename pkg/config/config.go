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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Queue        QueueConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Paddle       PaddleConfig
	Overage      OverageConfig
	Timeouts     TimeoutsConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Queue.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRYON_APP_ENV" required:"true"`
	Port         string `envconfig:"TRYON_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRYON_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRYON_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"TRYON_DB_DSN"`

	LegacyHost     string `envconfig:"TRYON_DB_HOST"`
	LegacyPort     int    `envconfig:"TRYON_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRYON_DB_USER"`
	LegacyPassword string `envconfig:"TRYON_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRYON_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRYON_DB_SSLMODE" default:"require"`

	MaxOpenConns    int           `envconfig:"TRYON_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRYON_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRYON_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRYON_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRYON_REDIS_URL"`
	Address      string        `envconfig:"TRYON_REDIS_ADDR"`
	Password     string        `envconfig:"TRYON_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRYON_REDIS_DB" default:"0"`
	TLS          bool          `envconfig:"TRYON_REDIS_TLS" default:"false"`
	PoolSize     int           `envconfig:"TRYON_REDIS_POOL_SIZE" default:"20"`
	MinIdleConns int           `envconfig:"TRYON_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRYON_REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"TRYON_REDIS_READ_TIMEOUT" default:"1s"`
	WriteTimeout time.Duration `envconfig:"TRYON_REDIS_WRITE_TIMEOUT" default:"1s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRYON_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRYON_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRYON_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig tunes the tenant quota gate. TierOverrides uses the
// `tier:perMinute/perHour` format, e.g. `starter:10/200,growth:30/1000`.
type RateLimitConfig struct {
	Timeout       time.Duration `envconfig:"TRYON_RATE_LIMIT_TIMEOUT" default:"250ms"`
	TierOverrides string        `envconfig:"TRYON_RATE_LIMIT_TIERS"`
}

type QueueConfig struct {
	Driver    string `envconfig:"TRYON_QUEUE_DRIVER" default:"redis"`
	RedisList string `envconfig:"TRYON_QUEUE_REDIS_LIST" default:"generation_tasks"`
}

func (q QueueConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(q.Driver)) {
	case QueueDriverRedis, QueueDriverPubSub:
		return nil
	default:
		return fmt.Errorf("queue driver must be %q or %q", QueueDriverRedis, QueueDriverPubSub)
	}
}

// UsesPubSub reports whether generation tasks are published to Pub/Sub instead of Redis.
func (q QueueConfig) UsesPubSub() bool {
	return strings.EqualFold(strings.TrimSpace(q.Driver), QueueDriverPubSub)
}

type GCPConfig struct {
	ProjectID string `envconfig:"TRYON_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	GenerationTopic string `envconfig:"TRYON_PUBSUB_GENERATION_TOPIC" default:"tryon-generation-tasks"`
}

type PaddleConfig struct {
	APIKey             string        `envconfig:"TRYON_PADDLE_API_KEY"`
	BaseURL            string        `envconfig:"TRYON_PADDLE_BASE_URL" default:"https://api.paddle.com"`
	WebhookSecret      string        `envconfig:"TRYON_PADDLE_WEBHOOK_SECRET" required:"true"`
	// SignatureTolerance of 0 disables the timestamp check.
	SignatureTolerance time.Duration `envconfig:"TRYON_PADDLE_SIGNATURE_TOLERANCE" default:"5m"`
	RequestTimeout     time.Duration `envconfig:"TRYON_PADDLE_REQUEST_TIMEOUT" default:"10s"`
	OverageProductID   string        `envconfig:"TRYON_PADDLE_OVERAGE_PRODUCT_ID"`
	ClaimTTL           time.Duration `envconfig:"TRYON_PADDLE_CLAIM_TTL" default:"10m"`
	CompletedClaimTTL  time.Duration `envconfig:"TRYON_PADDLE_COMPLETED_CLAIM_TTL" default:"72h"`
}

// OverageConfig lists per-tier overage unit prices as `tier:price` pairs, e.g.
// `starter:0.15,growth:0.12`. Prices are in CurrencyCode major units.
type OverageConfig struct {
	Prices       string `envconfig:"TRYON_OVERAGE_PRICES" default:"starter:0.15,growth:0.12,pro:0.10,enterprise:0.08"`
	CurrencyCode string `envconfig:"TRYON_OVERAGE_CURRENCY" default:"USD"`
}

type TimeoutsConfig struct {
	Ledger  time.Duration `envconfig:"TRYON_LEDGER_TIMEOUT" default:"5s"`
	Enqueue time.Duration `envconfig:"TRYON_ENQUEUE_TIMEOUT" default:"5s"`
	Audit   time.Duration `envconfig:"TRYON_WEBHOOK_AUDIT_TIMEOUT" default:"5s"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TRYON_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRYON_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"TRYON_CRON_INTERVAL" default:"1h"`
	LockTTL        time.Duration `envconfig:"TRYON_CRON_LOCK_TTL" default:"55m"`
	ReconcileLimit int           `envconfig:"TRYON_CRON_RECONCILE_LIMIT" default:"500"`
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
