package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

const minSessionSecret = 16

// SMTP holds outgoing mail settings. Mail delivery is disabled without a host.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"StudCloud SSO"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreBackend     string `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MongoURL         string `env:"MONGO_URL"`
	MongoDatabase    string `env:"MONGO_DATABASE" envDefault:"sso"`
	RedisURL         string `env:"REDIS_URL"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionIssuer string        `env:"SESSION_ISSUER" envDefault:"studcloud-sso"`

	MailTokenTTL     time.Duration `env:"MAIL_TOKEN_TTL" envDefault:"48h"`
	MobileTokenTTL   time.Duration `env:"MOBILE_TOKEN_TTL" envDefault:"15m"`
	DocumentTokenTTL time.Duration `env:"DOCUMENT_TOKEN_TTL" envDefault:"336h"`
	PasswordTokenTTL time.Duration `env:"PASSWORD_TOKEN_TTL" envDefault:"1h"`

	StoreRetryAttempts  int           `env:"STORE_RETRY_ATTEMPTS" envDefault:"5"`
	StoreRetryBaseDelay time.Duration `env:"STORE_RETRY_BASE_DELAY" envDefault:"50ms"`
	StoreRetryMaxDelay  time.Duration `env:"STORE_RETRY_MAX_DELAY" envDefault:"1s"`
	StoreTimeout        time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	SignInPerMinute int           `env:"SIGNIN_PER_MINUTE" envDefault:"5"`
	ShutdownPeriod  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	SMTP             SMTP   `envPrefix:"SMTP_"`
	PhoneRegion      string `env:"PHONE_REGION" envDefault:"RU"`
	DocumentReviewer string `env:"DOCUMENT_REVIEWER_EMAIL"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set for the postgres backend"))
		}
	case BackendMongo:
		if c.MongoURL == "" {
			errs = append(errs, errors.New("MONGO_URL must be set for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if len(c.SessionSecret) < minSessionSecret {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecret))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.StoreRetryAttempts < 1 {
		errs = append(errs, errors.New("STORE_RETRY_ATTEMPTS must be at least 1"))
	}
	for name, ttl := range map[string]time.Duration{
		"MAIL_TOKEN_TTL":     c.MailTokenTTL,
		"MOBILE_TOKEN_TTL":   c.MobileTokenTTL,
		"DOCUMENT_TOKEN_TTL": c.DocumentTokenTTL,
		"PASSWORD_TOKEN_TTL": c.PasswordTokenTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// Production reports whether the service runs in production.
func (c Config) Production() bool {
	return c.AppEnv == "production"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
