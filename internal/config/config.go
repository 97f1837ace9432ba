// Package config loads facetctl settings from the environment and upgrade
// plans from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/facetctl/internal/logging"
)

// Config holds the environment-level settings shared by every command.
type Config struct {
	RPCURL         string        `env:"FACETCTL_RPC_URL"`
	ChainID        uint64        `env:"FACETCTL_CHAIN_ID"`
	Deployer       string        `env:"FACETCTL_DEPLOYER"`
	TxTimeout      time.Duration `env:"FACETCTL_TX_TIMEOUT,default=2m"`
	PollInterval   time.Duration `env:"FACETCTL_POLL_INTERVAL,default=1s"`
	RPCRate        float64       `env:"FACETCTL_RPC_RATE"`
	LogLevel       string        `env:"FACETCTL_LOG_LEVEL,default=info"`
	LogFormat      string        `env:"FACETCTL_LOG_FORMAT,default=text"`
	PushgatewayURL string        `env:"FACETCTL_PUSHGATEWAY_URL"`
	Network        string        `env:"FACETCTL_NETWORK"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		TxTimeout:    2 * time.Minute,
		PollInterval: time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads envFile (when non-empty) into the process environment and
// decodes the FACETCTL_* variables. A missing envFile is not an error.
// Variables already set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	// Strict mode surfaces unparsable values instead of keeping the default.
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envdecode cannot check on its own.
func (c *Config) Validate() error {
	if c.TxTimeout <= 0 {
		return fmt.Errorf("FACETCTL_TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("FACETCTL_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.RPCRate < 0 {
		return fmt.Errorf("FACETCTL_RPC_RATE must not be negative, got %v", c.RPCRate)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("FACETCTL_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: strings.ToLower(c.LogFormat)}
}
