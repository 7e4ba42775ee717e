package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is the last-known-good payload for a category. Staleness is
// computed lazily from FetchedAt+TTL at read time; no background sweep.
type CacheEntry struct {
	Category         Category        `json:"category"`
	Payload          json.RawMessage `json:"payload"`
	FetchedAt        time.Time       `json:"fetched_at"`
	TTL              time.Duration   `json:"ttl"`
	SourceProviderID string          `json:"source_provider_id"`
}

// Fresh reports whether the entry is still within its TTL.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.FetchedAt.Add(e.TTL))
}

// FeedUpdate is what the scheduler hands to the hub on a successful tick.
type FeedUpdate struct {
	Channel          string          `json:"channel"`
	Payload          json.RawMessage `json:"payload"`
	Stale            bool            `json:"stale"`
	SourceProviderID string          `json:"source_provider_id"`
	FetchedAt        time.Time       `json:"fetched_at"`
}

// ChannelSnapshot is the per-channel operational view for diagnostics.
type ChannelSnapshot struct {
	Channel     string    `json:"channel"`
	Category    Category  `json:"category"`
	Subscribers int       `json:"subscribers"`
	LastFetch   time.Time `json:"last_fetch,omitempty"`
	LastSource  string    `json:"last_source,omitempty"`
	LastStale   bool      `json:"last_stale"`
}
