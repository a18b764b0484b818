// Package config loads auctiond settings from YAML with environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	TransportTCP   = "tcp"
	TransportVsock = "vsock"
)

type Config struct {
	Server struct {
		Transport          string `yaml:"transport"`
		Port               uint32 `yaml:"port"`
		MaxWorkers         int    `yaml:"max_workers"`
		ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
	} `yaml:"server"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Receipt struct {
		KeyFile string `yaml:"key_file"`
		Attest  bool   `yaml:"attest"`
	} `yaml:"receipt"`
	Auction struct {
		Beneficiary     string `yaml:"beneficiary"`
		StartingPrice   string `yaml:"starting_price"`
		DurationSeconds int    `yaml:"duration_seconds"`
		Decimals        int32  `yaml:"decimals"`
	} `yaml:"auction"`
	Accounts map[string]string `yaml:"accounts"`
	Log      struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	cfg := Config{}
	cfg.Server.Transport = TransportTCP
	cfg.Server.Port = 5000
	cfg.Server.MaxWorkers = 8
	cfg.Server.ReadTimeoutSeconds = 30
	cfg.Metrics.Addr = ":9090"
	cfg.Journal.Path = ""
	cfg.Receipt.KeyFile = ""
	cfg.Receipt.Attest = false
	cfg.Auction.Beneficiary = "beneficiary"
	cfg.Auction.StartingPrice = "0"
	cfg.Auction.DurationSeconds = 3600
	cfg.Auction.Decimals = 0
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path over the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func Write(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// ApplyEnv overrides cfg with any AUCTION_* variables that are set.
func ApplyEnv(cfg *Config, logger zerolog.Logger) error {
	if v, ok, err := getEnvInt("AUCTION_MAX_WORKERS", logger); err != nil {
		return err
	} else if ok {
		cfg.Server.MaxWorkers = v
	}
	if v, ok, err := getEnvInt("AUCTION_LISTEN_PORT", logger); err != nil {
		return err
	} else if ok {
		if v < 0 || int64(v) > math.MaxUint32 {
			return fmt.Errorf("invalid value for AUCTION_LISTEN_PORT: %d", v)
		}
		cfg.Server.Port = uint32(v)
	}
	if v := os.Getenv("AUCTION_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
		logger.Info().Str("key", "AUCTION_TRANSPORT").Str("value", v).Msg("Using setting from environment")
	}
	if v := os.Getenv("AUCTION_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		logger.Info().Str("key", "AUCTION_METRICS_ADDR").Str("value", v).Msg("Using setting from environment")
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.Server.Transport {
	case TransportTCP, TransportVsock:
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	if c.Server.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", c.Server.MaxWorkers)
	}
	if c.Auction.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds must not be negative, got %d", c.Auction.DurationSeconds)
	}
	if c.Auction.Decimals < 0 || c.Auction.Decimals > 18 {
		return fmt.Errorf("decimals must be between 0 and 18, got %d", c.Auction.Decimals)
	}
	if c.Auction.Beneficiary == "" {
		return fmt.Errorf("auction beneficiary is required")
	}
	return nil
}

func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c Config) Duration() time.Duration {
	return time.Duration(c.Auction.DurationSeconds) * time.Second
}

// getEnvInt parses an optional integer environment variable.
func getEnvInt(key string, logger zerolog.Logger) (int, bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	logger.Info().Str("key", key).Int("value", intValue).Msg("Using setting from environment")
	return intValue, true, nil
}
