package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	ValorRateLimit ValorRateLimitConfig
	Swaps          SwapsConfig
	Fees           FeesConfig
	Trust          TrustConfig
	FeatureFlags   FeatureFlagsConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Swaps.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TAKAS_APP_ENV" required:"true"`
	Port         string `envconfig:"TAKAS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TAKAS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TAKAS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TAKAS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TAKAS_DB_DSN"`
	Driver string `envconfig:"TAKAS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TAKAS_DB_HOST"`
	LegacyPort     int    `envconfig:"TAKAS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TAKAS_DB_USER"`
	LegacyPassword string `envconfig:"TAKAS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TAKAS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TAKAS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TAKAS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TAKAS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TAKAS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TAKAS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TAKAS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TAKAS_REDIS_ADDR"`
	Password     string        `envconfig:"TAKAS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TAKAS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TAKAS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TAKAS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TAKAS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TAKAS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TAKAS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TAKAS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TAKAS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TAKAS_JWT_EXPIRATION_MINUTES" required:"true"`
}

// ValorRateLimitConfig throttles balance-mutating endpoints per user.
type ValorRateLimitConfig struct {
	Window    time.Duration `envconfig:"TAKAS_VALOR_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit int           `envconfig:"TAKAS_VALOR_RATE_LIMIT_USER_LIMIT" default:"30"`
	IPLimit   int           `envconfig:"TAKAS_VALOR_RATE_LIMIT_IP_LIMIT" default:"120"`
}

// SwapsConfig carries the settlement timing and deposit policy knobs.
type SwapsConfig struct {
	OfferTTL              time.Duration   `envconfig:"TAKAS_SWAPS_OFFER_TTL" default:"24h"`
	ReminderAfter         time.Duration   `envconfig:"TAKAS_SWAPS_REMINDER_AFTER" default:"18h"`
	ReminderBefore        time.Duration   `envconfig:"TAKAS_SWAPS_REMINDER_BEFORE" default:"20h"`
	DisputeWindow         time.Duration   `envconfig:"TAKAS_SWAPS_DISPUTE_WINDOW" default:"48h"`
	EvidenceDeadline      time.Duration   `envconfig:"TAKAS_SWAPS_EVIDENCE_DEADLINE" default:"48h"`
	DeliveryConfirmWindow time.Duration   `envconfig:"TAKAS_SWAPS_DELIVERY_CONFIRM_WINDOW" default:"72h"`
	DepositRate           decimal.Decimal `envconfig:"TAKAS_SWAPS_DEPOSIT_RATE" default:"0.10"`
	HighRiskThreshold     decimal.Decimal `envconfig:"TAKAS_SWAPS_HIGH_RISK_THRESHOLD" default:"1000"`
	MediumRiskThreshold   decimal.Decimal `envconfig:"TAKAS_SWAPS_MEDIUM_RISK_THRESHOLD" default:"250"`
	AutoCompleteHighRisk  bool            `envconfig:"TAKAS_SWAPS_AUTO_COMPLETE_HIGH_RISK" default:"false"`
	SweepBatchSize        int             `envconfig:"TAKAS_SWAPS_SWEEP_BATCH_SIZE" default:"100"`
	SweepInterval         time.Duration   `envconfig:"TAKAS_SWAPS_SWEEP_INTERVAL" default:"5m"`
}

func (s SwapsConfig) validate() error {
	if s.ReminderAfter >= s.ReminderBefore {
		return fmt.Errorf("%s must be before %s", EnvSwapsReminderAfter, EnvSwapsReminderBefore)
	}
	if s.ReminderBefore >= s.OfferTTL {
		return fmt.Errorf("%s must be before %s", EnvSwapsReminderBefore, EnvSwapsOfferTTL)
	}
	return nil
}

// FeesConfig holds the progressive commission brackets. The bracket list
// is ordered by ceiling; the last entry has no ceiling and catches the rest.
type FeesConfig struct {
	Brackets FeeBracketList `envconfig:"TAKAS_FEES_BRACKETS" default:"250:0.05,1000:0.08,inf:0.10"`
}

// FeeBracket maps a value ceiling to a commission rate. A nil Ceiling
// means the bracket is unbounded.
type FeeBracket struct {
	Ceiling *decimal.Decimal
	Rate    decimal.Decimal
}

type FeeBracketList []FeeBracket

// Decode implements envconfig.Decoder for the "ceiling:rate,..." format,
// e.g. "250:0.05,1000:0.08,inf:0.10".
func (f *FeeBracketList) Decode(value string) error {
	parts := strings.Split(value, ",")
	brackets := make(FeeBracketList, 0, len(parts))
	for _, part := range parts {
		ceilingRaw, rateRaw, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return fmt.Errorf("fee bracket %q must be ceiling:rate", part)
		}
		rate, err := decimal.NewFromString(rateRaw)
		if err != nil {
			return fmt.Errorf("fee bracket rate %q: %w", rateRaw, err)
		}
		bracket := FeeBracket{Rate: rate}
		if !strings.EqualFold(ceilingRaw, "inf") {
			ceiling, err := decimal.NewFromString(ceilingRaw)
			if err != nil {
				return fmt.Errorf("fee bracket ceiling %q: %w", ceilingRaw, err)
			}
			bracket.Ceiling = &ceiling
		}
		brackets = append(brackets, bracket)
	}
	if len(brackets) == 0 {
		return fmt.Errorf("at least one fee bracket is required")
	}
	if brackets[len(brackets)-1].Ceiling != nil {
		return fmt.Errorf("last fee bracket must be unbounded (ceiling \"inf\")")
	}
	*f = brackets
	return nil
}

// TrustConfig holds the per-event trust score deltas. Negative values
// lower the score; the score itself is clamped to [0, 100] at write time.
type TrustConfig struct {
	CompletedDelta        int `envconfig:"TAKAS_TRUST_COMPLETED_DELTA" default:"3"`
	UnilateralCancelDelta int `envconfig:"TAKAS_TRUST_UNILATERAL_CANCEL_DELTA" default:"-5"`
	MutualCancelDelta     int `envconfig:"TAKAS_TRUST_MUTUAL_CANCEL_DELTA" default:"0"`
	DisputeAgainstDelta   int `envconfig:"TAKAS_TRUST_DISPUTE_AGAINST_DELTA" default:"-10"`
	InitialScore          int `envconfig:"TAKAS_TRUST_INITIAL_SCORE" default:"50"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TAKAS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TAKAS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TAKAS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TAKAS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TAKAS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"TAKAS_PUBSUB_NOTIFICATION_TOPIC" default:"takas-notification-events"`
	NotificationSubscription string `envconfig:"TAKAS_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TAKAS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"TAKAS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"TAKAS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"TAKAS_OUTBOX_IDEMPOTENCY_TTL" default:"72h"`
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
