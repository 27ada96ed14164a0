// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process configuration, populated from environment variables.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// WriteAckTimeout bounds how long a submitted RSVP may sit unacknowledged
	// before the retry loop kicks in; WriteMaxElapsed caps total retry time.
	WriteAckTimeout time.Duration `env:"WRITE_ACK_TIMEOUT" envDefault:"3s"`
	WriteMaxElapsed time.Duration `env:"WRITE_MAX_ELAPSED" envDefault:"30s"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bounds that env tags alone cannot express.
func (c *Config) Validate() error {
	if c.WriteAckTimeout <= 0 {
		return fmt.Errorf("WRITE_ACK_TIMEOUT must be positive, got %s", c.WriteAckTimeout)
	}
	if c.WriteMaxElapsed < c.WriteAckTimeout {
		return fmt.Errorf("WRITE_MAX_ELAPSED must be >= WRITE_ACK_TIMEOUT")
	}
	return nil
}
