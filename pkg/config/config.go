package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level          string `yaml:"level"`
		Format         string `yaml:"format"`
		Output         string `yaml:"output"`
		FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
		FileMaxBackups int    `yaml:"file_max_backups"`
		FileMaxAgeDays int    `yaml:"file_max_age_days"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		SlowThreshold time.Duration `yaml:"slow_threshold"`
	} `yaml:"metrics"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Firehose struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"firehose"`
	Router struct {
		MaxAttempts    int           `yaml:"max_attempts"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout"`
		OverallTimeout time.Duration `yaml:"overall_timeout"`
	} `yaml:"router"`
	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		BaseCooldown     time.Duration `yaml:"base_cooldown"`
		MaxCooldown      time.Duration `yaml:"max_cooldown"`
	} `yaml:"breaker"`
	Health struct {
		WindowSize int           `yaml:"window_size"`
		WindowAge  time.Duration `yaml:"window_age"`
	} `yaml:"health"`
	Hub struct {
		QueueSize     int           `yaml:"queue_size"`
		DropThreshold int           `yaml:"drop_threshold"`
		PingInterval  time.Duration `yaml:"ping_interval"`
	} `yaml:"hub"`
	Cache struct {
		DefaultTTL time.Duration `yaml:"default_ttl"`
	} `yaml:"cache"`
	Providers []ProviderConfig `yaml:"providers"`
	Channels  []ChannelConfig  `yaml:"channels"`
}

// ProviderConfig declares one upstream source.
type ProviderConfig struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Tier     int    `yaml:"tier"`
	Disabled bool   `yaml:"disabled"`
	Rate     struct {
		PerMinute int `yaml:"per_minute"`
		PerHour   int `yaml:"per_hour"`
	} `yaml:"rate"`
	URL           string            `yaml:"url"`
	Method        string            `yaml:"method"`
	Headers       map[string]string `yaml:"headers"`
	Query         map[string]string `yaml:"query"`
	APIKeyHeader  string            `yaml:"api_key_header"`
	APIKeyParam   string            `yaml:"api_key_param"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	APIKey        string            `yaml:"-"`
	RequiredField string            `yaml:"required_field"`
}

// ChannelConfig declares one broadcast channel.
type ChannelConfig struct {
	Name         string        `yaml:"name"`
	Category     string        `yaml:"category"`
	Interval     time.Duration `yaml:"interval"`
	IdleInterval time.Duration `yaml:"idle_interval"`
	TTL          time.Duration `yaml:"ttl"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Provider API keys are never stored in the file; they resolve through each
// provider's api_key_env.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port := splitHostPort(v)
		c.Redis.Host = host
		if port > 0 {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Firehose.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FIREHOSE_TOPIC"); v != "" {
		c.Firehose.Topic = v
	}

	for i := range c.Providers {
		if env := c.Providers[i].APIKeyEnv; env != "" {
			c.Providers[i].APIKey = os.Getenv(env)
		}
	}

	return c, nil
}

func splitHostPort(addr string) (string, int) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return addr, 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers cannot be empty")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("channels cannot be empty")
	}

	seen := make(map[string]bool, len(c.Providers))
	categories := make(map[string]bool)
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id '%s'", p.ID)
		}
		seen[p.ID] = true
		if p.Category == "" {
			return fmt.Errorf("provider '%s': category is required", p.ID)
		}
		if p.Tier < 1 {
			return fmt.Errorf("provider '%s': tier must be >= 1", p.ID)
		}
		if p.URL == "" {
			return fmt.Errorf("provider '%s': url is required", p.ID)
		}
		// Zero means unlimited; only reject nonsense values.
		if p.Rate.PerMinute < 0 || p.Rate.PerHour < 0 {
			return fmt.Errorf("provider '%s': rate limits must not be negative", p.ID)
		}
		categories[p.Category] = true
	}

	names := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel name is required")
		}
		if names[ch.Name] {
			return fmt.Errorf("duplicate channel '%s'", ch.Name)
		}
		names[ch.Name] = true
		if ch.Interval <= 0 {
			return fmt.Errorf("channel '%s': interval must be positive", ch.Name)
		}
		if !categories[ch.Category] {
			return fmt.Errorf("channel '%s': no provider serves category '%s'", ch.Name, ch.Category)
		}
	}
	return nil
}
