package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`
	AppURL string `env:"APP_URL"`

	// RedisURL addresses both external collaborators: the connection
	// registry and the broadcast channel.
	RedisURL string `env:"REDIS_URL"`

	// EndpointSecret enables the timestamped-HMAC verification scheme.
	// It takes precedence over SigningSecret when both are set.
	EndpointSecret   string `env:"STRIPE_ENDPOINT_SECRET"`
	SigningSecret    string `env:"SIGNING_SECRET"`
	ToleranceSeconds int    `env:"STRIPE_TOLERANCE_SECONDS" default:"300"`

	BroadcastChannel string `env:"BROADCAST_CHANNEL" default:"broadcast:payments"`
	ConnectionSetKey string `env:"CONNECTION_SET_KEY" default:"connections"`

	MaxConcurrentPushes int           `env:"MAX_CONCURRENT_PUSHES" default:"32"`
	PushTimeout         time.Duration `env:"PUSH_TIMEOUT" default:"5s"`

	MaxConnections       int64   `env:"MAX_CONNECTIONS" default:"10000"`
	ConnectionRatePerIP  float64 `env:"CONNECTION_RATE_PER_IP" default:"5"`
	ConnectionBurstPerIP int     `env:"CONNECTION_BURST_PER_IP" default:"10"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if cfg.ToleranceSeconds <= 0 {
		return errors.New("STRIPE_TOLERANCE_SECONDS must be positive")
	}
	if cfg.MaxConcurrentPushes < 1 {
		return errors.New("MAX_CONCURRENT_PUSHES must be at least 1")
	}
	if cfg.PushTimeout <= 0 {
		return errors.New("PUSH_TIMEOUT must be positive")
	}

	for name, secret := range map[string]string{
		"STRIPE_ENDPOINT_SECRET": cfg.EndpointSecret,
		"SIGNING_SECRET":         cfg.SigningSecret,
	} {
		if secret != "" && (len(secret) < 10 || len(secret) > 100) {
			return fmt.Errorf("%s must be between 10 and 100 characters", name)
		}
	}

	return nil
}

// Tolerance returns the timestamped-scheme replay tolerance as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}
