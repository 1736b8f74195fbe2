// Package config loads service configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const EnvProduction = "production"

// Config is the API server configuration.
type Config struct {
	Env      string `env:"LAUNDRYDESK_ENV"       envDefault:"development"`
	HTTPAddr string `env:"LAUNDRYDESK_HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LAUNDRYDESK_LOG_LEVEL" envDefault:"info"`

	DatabaseURL   string `env:"LAUNDRYDESK_PG_DSN"`
	RedisURL      string `env:"LAUNDRYDESK_REDIS_URL"`
	EventsChannel string `env:"LAUNDRYDESK_EVENTS_CHANNEL" envDefault:"laundrydesk:capabilities"`

	AuthSecret string `env:"LAUNDRYDESK_AUTH_SECRET"`
	AuthIssuer string `env:"LAUNDRYDESK_AUTH_ISSUER" envDefault:"laundrydesk"`

	OTLPEndpoint string `env:"LAUNDRYDESK_OTLP_ENDPOINT"`

	SessionCacheSize int           `env:"LAUNDRYDESK_SESSION_CACHE_SIZE" envDefault:"4096"`
	SessionTTL       time.Duration `env:"LAUNDRYDESK_SESSION_TTL"        envDefault:"30m"`
	AuditTimeout     time.Duration `env:"LAUNDRYDESK_AUDIT_TIMEOUT"      envDefault:"3s"`

	RateLimitRPS    float64       `env:"LAUNDRYDESK_RATE_LIMIT_RPS"   envDefault:"20"`
	RateLimitBurst  int           `env:"LAUNDRYDESK_RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins     []string      `env:"LAUNDRYDESK_CORS_ORIGINS"     envSeparator:","`
	MaxBodyBytes    int64         `env:"LAUNDRYDESK_MAX_BODY_BYTES"   envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"LAUNDRYDESK_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env files outside production, then parses the environment
// and validates the result. Variables already set in the process win over
// file values.
func Load() (Config, error) {
	if strings.TrimSpace(os.Getenv("LAUNDRYDESK_ENV")) != EnvProduction {
		name := strings.TrimSpace(os.Getenv("LAUNDRYDESK_ENV"))
		if name == "" {
			name = "development"
		}
		if err := LoadEnvFiles(".env."+name, ".env"); err != nil {
			return Config{}, err
		}
	}
	return Parse()
}

// LoadEnvFiles loads each existing file without overriding set variables.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Parse reads configuration from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSOrigins = trimCSV(cfg.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("LAUNDRYDESK_AUTH_SECRET is required")
	}
	if c.Production() && strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("LAUNDRYDESK_PG_DSN is required in production")
	}
	if c.SessionCacheSize <= 0 {
		return errors.New("LAUNDRYDESK_SESSION_CACHE_SIZE must be positive")
	}
	if c.SessionTTL <= 0 || c.AuditTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("durations must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("LAUNDRYDESK_MAX_BODY_BYTES must be positive")
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

func trimCSV(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
