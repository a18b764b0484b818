package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	check.NoError(t, cfg.Validate())
	check.Equal(t, TransportTCP, cfg.Server.Transport)
	check.Equal(t, 30*time.Second, cfg.ReadTimeout())
	check.Equal(t, time.Hour, cfg.Duration())
}

func TestWriteLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auctiond.yaml")

	cfg := Default()
	cfg.Server.Transport = TransportVsock
	cfg.Server.Port = 7000
	cfg.Auction.StartingPrice = "1.50"
	cfg.Auction.Decimals = 2
	cfg.Accounts = map[string]string{"alice": "100"}
	assert.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	assert.NoError(t, err)
	check.Equal(t, cfg.Server, loaded.Server)
	check.Equal(t, cfg.Auction, loaded.Auction)
	check.Equal(t, "100", loaded.Accounts["alice"])
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auctiond.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("server:\n  port: 6000\n"), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	check.Equal(t, uint32(6000), cfg.Server.Port)
	check.Equal(t, 8, cfg.Server.MaxWorkers)
	check.Equal(t, TransportTCP, cfg.Server.Transport)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	check.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err = Load(path)
	check.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AUCTION_MAX_WORKERS", "3")
	t.Setenv("AUCTION_LISTEN_PORT", "5005")
	t.Setenv("AUCTION_TRANSPORT", TransportVsock)
	t.Setenv("AUCTION_METRICS_ADDR", "127.0.0.1:9999")

	cfg := Default()
	assert.NoError(t, ApplyEnv(&cfg, zerolog.Nop()))
	check.Equal(t, 3, cfg.Server.MaxWorkers)
	check.Equal(t, uint32(5005), cfg.Server.Port)
	check.Equal(t, TransportVsock, cfg.Server.Transport)
	check.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
}

func TestApplyEnv_InvalidInteger(t *testing.T) {
	t.Setenv("AUCTION_MAX_WORKERS", "many")
	cfg := Default()
	check.Error(t, ApplyEnv(&cfg, zerolog.Nop()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Server.Transport = "udp" }},
		{"no workers", func(c *Config) { c.Server.MaxWorkers = 0 }},
		{"negative duration", func(c *Config) { c.Auction.DurationSeconds = -1 }},
		{"too many decimals", func(c *Config) { c.Auction.Decimals = 19 }},
		{"no beneficiary", func(c *Config) { c.Auction.Beneficiary = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			check.Error(t, cfg.Validate())
		})
	}
}
