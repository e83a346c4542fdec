// Package config loads process configuration from the environment: an
// optional godotenv file for local development, then envdecode struct
// tags for the scalar settings, with a hand-parsed CSV field envdecode does
// not model. The webhook retry delays are fixed at 1s/2s/4s and are not
// read from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// envdecode returns an error when none of its tagged fields were present in
// the environment; treat that case as "no overrides" rather than depend on
// an exported sentinel.

// scalars is decoded directly by envdecode; see Config for the fields it
// cannot express (slices of non-scalar type).
type scalars struct {
	SigningPrivateKeyHex string        `env:"SIGNING_PRIVATE_KEY_HEX"`
	StorageDriver        string        `env:"STORAGE_DRIVER,default=memory"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	HTTPAddr             string        `env:"HTTP_ADDR,default=:8080"`
	AllowedOriginsRaw    string        `env:"ALLOWED_ORIGINS,default=*"`
	ReadAuthEnabled      bool          `env:"READ_AUTH_ENABLED,default=false"`
	RateLimitPerMinute   int           `env:"RATE_LIMIT_PER_MINUTE,default=120"`
	WebhookWorkers       int           `env:"WEBHOOK_WORKERS,default=4"`
	WebhookTimeout       time.Duration `env:"WEBHOOK_TIMEOUT,default=5s"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	LogFormat            string        `env:"LOG_FORMAT,default=text"`
	DecaySweepCron       string        `env:"DECAY_SWEEP_CRON,default=@hourly"`
}

// Config holds every environment-controlled process setting.
type Config struct {
	SigningPrivateKeyHex string // SIGNING_PRIVATE_KEY_HEX, optional

	StorageDriver string // "memory" or "postgres"
	DatabaseURL   string

	HTTPAddr        string
	AllowedOrigins  []string
	ReadAuthEnabled bool

	RateLimitPerMinute int

	WebhookWorkers     int
	WebhookTimeout     time.Duration
	WebhookRetryDelays []time.Duration

	LogLevel  string
	LogFormat string

	DecaySweepCron string
}

// Load reads configuration from the environment, first loading a local
// .env file if present (ignored if absent, so a real environment's
// variables always win over a missing or stale dev file).
func Load() (Config, error) {
	_ = godotenv.Load()

	var s scalars
	if err := envdecode.Decode(&s); err != nil && !strings.Contains(err.Error(), "none of the target fields were set") {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	cfg := Config{
		SigningPrivateKeyHex: s.SigningPrivateKeyHex,
		StorageDriver:        s.StorageDriver,
		DatabaseURL:          s.DatabaseURL,
		HTTPAddr:             s.HTTPAddr,
		AllowedOrigins:       splitCSV(s.AllowedOriginsRaw),
		ReadAuthEnabled:      s.ReadAuthEnabled,
		RateLimitPerMinute:   s.RateLimitPerMinute,
		WebhookWorkers:       s.WebhookWorkers,
		WebhookTimeout:       s.WebhookTimeout,
		WebhookRetryDelays:   []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		LogLevel:             s.LogLevel,
		LogFormat:            s.LogFormat,
		DecaySweepCron:       s.DecaySweepCron,
	}

	if cfg.StorageDriver == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
