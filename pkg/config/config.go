package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "JEMO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "JEMO_DB_DSN"
	EnvDBHost = "JEMO_DB_HOST"
	EnvDBUser = "JEMO_DB_USER"
	EnvDBName = "JEMO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Fees      FeesConfig
	Payout    PayoutConfig
	MyCoolPay MyCoolPayConfig
	Flags     FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"JEMO_APP_ENV" required:"true"`
	Port         string `envconfig:"JEMO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"JEMO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"JEMO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"JEMO_DB_DSN"`
	Driver string `envconfig:"JEMO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"JEMO_DB_HOST"`
	LegacyPort     int    `envconfig:"JEMO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"JEMO_DB_USER"`
	LegacyPassword string `envconfig:"JEMO_DB_PASSWORD"`
	LegacyName     string `envconfig:"JEMO_DB_NAME"`
	LegacySSLMode  string `envconfig:"JEMO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"JEMO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"JEMO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"JEMO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"JEMO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"JEMO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"JEMO_REDIS_ADDR"`
	Password     string        `envconfig:"JEMO_REDIS_PASSWORD"`
	DB           int           `envconfig:"JEMO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"JEMO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"JEMO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"JEMO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"JEMO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"JEMO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// FeesConfig holds the platform's take on each money flow, in percent.
type FeesConfig struct {
	VendorProcessingPercent float64 `envconfig:"JEMO_FEES_VENDOR_PROCESSING_PERCENT" default:"2.5"`
	RiderProcessingPercent  float64 `envconfig:"JEMO_FEES_RIDER_PROCESSING_PERCENT" default:"2.5"`
	CommissionPercent       float64 `envconfig:"JEMO_FEES_COMMISSION_PERCENT" default:"0"`
}

func (f FeesConfig) validate() error {
	for name, pct := range map[string]float64{
		"vendor processing": f.VendorProcessingPercent,
		"rider processing":  f.RiderProcessingPercent,
		"commission":        f.CommissionPercent,
	} {
		if pct < 0 || pct >= 100 {
			return fmt.Errorf("%s fee percent out of range: %v", name, pct)
		}
	}
	return nil
}

// PayoutConfig bounds withdrawal requests.
type PayoutConfig struct {
	MinAmount int64         `envconfig:"JEMO_PAYOUT_MIN_AMOUNT" default:"500"`
	MaxAmount int64         `envconfig:"JEMO_PAYOUT_MAX_AMOUNT" default:"500000"`
	Cooldown  time.Duration `envconfig:"JEMO_PAYOUT_COOLDOWN" default:"30m"`
}

func (p PayoutConfig) validate() error {
	if p.MinAmount <= 0 {
		return fmt.Errorf("payout minimum must be positive, got %d", p.MinAmount)
	}
	if p.MaxAmount < p.MinAmount {
		return fmt.Errorf("payout maximum %d below minimum %d", p.MaxAmount, p.MinAmount)
	}
	return nil
}

// MyCoolPayConfig configures the external mobile-money provider.
type MyCoolPayConfig struct {
	BaseURL     string        `envconfig:"JEMO_MYCOOLPAY_BASE_URL" default:"https://my-coolpay.com/api"`
	PublicKey   string        `envconfig:"JEMO_MYCOOLPAY_PUBLIC_KEY" required:"true"`
	PrivateKey  string        `envconfig:"JEMO_MYCOOLPAY_PRIVATE_KEY" required:"true"`
	Timeout     time.Duration `envconfig:"JEMO_MYCOOLPAY_TIMEOUT" default:"30s"`
	IntentTTL   time.Duration `envconfig:"JEMO_MYCOOLPAY_INTENT_TTL" default:"30m"`
	CustomerLng string        `envconfig:"JEMO_MYCOOLPAY_CUSTOMER_LANG" default:"fr"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"JEMO_AUTO_MIGRATE" default:"false"`
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
