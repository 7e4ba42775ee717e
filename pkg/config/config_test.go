package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{Environment: "test"}
	p := ProviderConfig{
		ID:       "coingecko",
		Category: "market_data",
		Tier:     1,
		URL:      "https://api.coingecko.com/api/v3/simple/price",
	}
	p.Rate.PerMinute = 30
	c.Providers = []ProviderConfig{p}
	c.Channels = []ChannelConfig{{
		Name:     "market_data",
		Category: "market_data",
		Interval: 10 * time.Second,
	}}
	return c
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMissingEnvironment(t *testing.T) {
	c := validConfig()
	c.Environment = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing environment")
	}
}

func TestValidateDuplicateProviderID(t *testing.T) {
	c := validConfig()
	c.Providers = append(c.Providers, c.Providers[0])
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate provider") {
		t.Fatalf("expected duplicate provider error, got %v", err)
	}
}

func TestValidateChannelWithoutProvider(t *testing.T) {
	c := validConfig()
	c.Channels[0].Category = "news"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "no provider serves category") {
		t.Fatalf("expected unserved category error, got %v", err)
	}
}

func TestValidateUnlimitedRate(t *testing.T) {
	c := validConfig()
	c.Providers[0].Rate.PerMinute = 0
	c.Providers[0].Rate.PerHour = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("zero rate means unlimited, got %v", err)
	}
}

func TestValidateNegativeRate(t *testing.T) {
	c := validConfig()
	c.Providers[0].Rate.PerMinute = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

const testYAML = `
environment: test
server:
  host: 0.0.0.0
  port: 8080
providers:
  - id: coingecko
    category: market_data
    tier: 1
    url: https://api.coingecko.com/api/v3/simple/price
    rate:
      per_minute: 30
    api_key_env: TEST_COINGECKO_KEY
channels:
  - name: market_data
    category: market_data
    interval: 10s
    idle_interval: 60s
    ttl: 30s
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeTempConfig(t, testYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", c.Server.Port)
	}
	if c.Channels[0].Interval != 10*time.Second {
		t.Fatalf("unexpected interval %v", c.Channels[0].Interval)
	}
	if c.Channels[0].TTL != 30*time.Second {
		t.Fatalf("unexpected ttl %v", c.Channels[0].TTL)
	}
}

func TestLoadWithEnvResolvesAPIKey(t *testing.T) {
	t.Setenv("TEST_COINGECKO_KEY", "secret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis-1:6380")

	c, err := LoadWithEnv(writeTempConfig(t, testYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Providers[0].APIKey != "secret" {
		t.Fatalf("api key not resolved: %q", c.Providers[0].APIKey)
	}
	if c.Logging.Level != "debug" {
		t.Fatalf("log level override missing: %q", c.Logging.Level)
	}
	if c.Redis.Host != "redis-1" || c.Redis.Port != 6380 {
		t.Fatalf("redis addr override missing: %s:%d", c.Redis.Host, c.Redis.Port)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "environment: [broken")); err == nil {
		t.Fatalf("expected parse error")
	}
}
