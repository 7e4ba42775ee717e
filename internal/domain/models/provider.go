package models

import "time"

// Category identifies a logical data feed. Each category has its own provider
// list, cache TTL, and subscriber channel.
type Category string

const (
	CategoryMarketData    Category = "market_data"
	CategoryNews          Category = "news"
	CategorySentiment     Category = "sentiment"
	CategoryWhaleTracking Category = "whale_tracking"
	CategoryOnChain       Category = "on_chain"
	CategoryRPC           Category = "rpc"
)

// RateLimit holds per-provider request quotas. Zero means unlimited.
type RateLimit struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
}

// Unlimited reports whether no quota applies.
func (r RateLimit) Unlimited() bool { return r.PerMinute <= 0 && r.PerHour <= 0 }

// FetchDescriptor is the per-category variant config handed to the Fetcher.
// Only the fields for the provider's category are populated.
type FetchDescriptor struct {
	Kind string `yaml:"kind"` // http_json is the only built-in kind

	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Query   map[string]string `yaml:"query"`

	// Auth scheme variants; exactly one is set.
	APIKeyHeader string `yaml:"api_key_header"` // header name carrying APIKey
	APIKeyParam  string `yaml:"api_key_param"`  // query param carrying APIKey
	APIKey       string `yaml:"api_key"`

	// JSONPath-lite pointer used to reject payloads missing required data.
	RequiredField string `yaml:"required_field"`
}

// Provider is one upstream data source within a category. Immutable after
// registration except for runtime enable/disable, which the registry owns.
type Provider struct {
	ID         string          `yaml:"id"`
	Category   Category        `yaml:"category"`
	Tier       int             `yaml:"tier"` // lower = preferred
	RateLimit  RateLimit       `yaml:"rate_limit"`
	Descriptor FetchDescriptor `yaml:"descriptor"`
}

// ProviderSnapshot is the read-only operational view exported for dashboards.
type ProviderSnapshot struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	Tier         int       `json:"tier"`
	Enabled      bool      `json:"enabled"`
	Status       string    `json:"status"`
	Score        float64   `json:"score"`
	CircuitState string    `json:"circuit_state"`
	SuccessRate  float64   `json:"success_rate"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	Samples      int       `json:"samples"`
	LastSample   time.Time `json:"last_sample,omitempty"`
}
