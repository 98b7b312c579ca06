// Package config loads the ambient (non-protocol) settings described in
// SPEC_FULL.md's AMBIENT STACK section, grounded on adred-codev-ws_poc/ws's
// config.go Config/LoadConfig/Validate/LogConfig shape. The mandatory
// positional server arguments (port, S, D, threads) are parsed separately by
// cmd/salesd, since they're part of the wire-level contract (§6), not an
// environment override.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every environment-overridable ambient setting.
type Config struct {
	DataDir         string        `env:"SALESD_DATA_DIR" envDefault:"data"`
	LogLevel        string        `env:"SALESD_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"SALESD_LOG_FORMAT" envDefault:"json"`
	MetricsInterval time.Duration `env:"SALESD_METRICS_INTERVAL" envDefault:"15s"`
	ReadTimeout     time.Duration `env:"SALESD_READ_TIMEOUT" envDefault:"60s"`
}

// Load reads .env (if present) then the environment, validating the result.
// A missing .env file is not an error — most deployments set real environment
// variables instead (teacher's config.go does the same).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks enum fields and positive durations.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("SALESD_LOG_LEVEL must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("SALESD_LOG_FORMAT must be one of json|pretty, got %q", c.LogFormat)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("SALESD_METRICS_INTERVAL must be positive, got %s", c.MetricsInterval)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("SALESD_READ_TIMEOUT must be positive, got %s", c.ReadTimeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("SALESD_DATA_DIR must not be empty")
	}
	return nil
}

// LogConfig emits the loaded configuration as one structured log line, for
// the startup logging supplement (SPEC_FULL.md Supplements #1).
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("data_dir", c.DataDir).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Dur("metrics_interval", c.MetricsInterval).
		Dur("read_timeout", c.ReadTimeout).
		Msg("configuration loaded")
}
