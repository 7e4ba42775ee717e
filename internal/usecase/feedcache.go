package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"FeedGate/internal/domain/models"
	pkgcache "FeedGate/pkg/cache"
	xlogger "FeedGate/pkg/logger"
)

// ErrNoCacheEntry reports true exhaustion: the router failed and there is no
// prior entry, not even an expired one, to serve stale.
var ErrNoCacheEntry = errors.New("cache: no entry to serve stale")

// Router is the fetch path the cache delegates to on a miss.
type Router interface {
	Execute(ctx context.Context, category models.Category, params map[string]string) (json.RawMessage, string, error)
}

// FeedCache holds the last-known-good payload per category, with
// stale-if-error fallback. Each category owns its slot; a per-slot mutex
// serializes fetches so concurrent expiry never stampedes the router.
type FeedCache struct {
	router Router
	ttls   map[models.Category]time.Duration
	ttl    time.Duration // fallback when a category has no explicit TTL

	mu    sync.Mutex
	slots map[models.Category]*slot

	// Optional external KV for multi-instance warm start. Nil degrades to
	// pure in-memory caching.
	kv     pkgcache.Service
	logger *xlogger.Logger

	now func() time.Time
}

type slot struct {
	mu    sync.Mutex
	entry *models.CacheEntry
}

// CacheOption configures a FeedCache.
type CacheOption func(*FeedCache)

// WithCategoryTTL sets a per-category TTL.
func WithCategoryTTL(c models.Category, ttl time.Duration) CacheOption {
	return func(fc *FeedCache) { fc.ttls[c] = ttl }
}

// WithDefaultTTL sets the TTL for categories without an explicit one.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(fc *FeedCache) {
		if ttl > 0 {
			fc.ttl = ttl
		}
	}
}

// WithKV attaches an external KV backend (Redis) for write-through sharing.
func WithKV(kv pkgcache.Service) CacheOption {
	return func(fc *FeedCache) { fc.kv = kv }
}

// WithCacheClock overrides the time source, used by tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(fc *FeedCache) { fc.now = now }
}

// NewFeedCache creates a feed cache backed by the given router.
func NewFeedCache(router Router, logger *xlogger.Logger, opts ...CacheOption) *FeedCache {
	fc := &FeedCache{
		router: router,
		ttls:   make(map[models.Category]time.Duration),
		ttl:    30 * time.Second,
		slots:  make(map[models.Category]*slot),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(fc)
	}
	return fc
}

func (fc *FeedCache) slotFor(category models.Category) *slot {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	s, ok := fc.slots[category]
	if !ok {
		s = &slot{}
		fc.slots[category] = s
	}
	return s
}

func (fc *FeedCache) ttlFor(category models.Category) time.Duration {
	if ttl, ok := fc.ttls[category]; ok && ttl > 0 {
		return ttl
	}
	return fc.ttl
}

// GetOrFetch returns the category payload: a fresh cache hit short-circuits,
// otherwise the router runs and a success overwrites the entry. On router
// failure any prior entry is served with stale=true; with no prior entry the
// router's error is returned wrapped with ErrNoCacheEntry.
func (fc *FeedCache) GetOrFetch(ctx context.Context, category models.Category) (*models.CacheEntry, bool, error) {
	s := fc.slotFor(category)

	// Slot lock spans the router call: concurrent callers on an expired
	// entry wait, then see the one refreshed result.
	s.mu.Lock()
	defer s.mu.Unlock()

	now := fc.now()
	if s.entry != nil && s.entry.Fresh(now) {
		return s.entry, false, nil
	}

	if s.entry == nil && fc.kv != nil {
		if e := fc.kvLoad(ctx, category); e != nil {
			s.entry = e
			if e.Fresh(now) {
				return e, false, nil
			}
		}
	}

	payload, providerID, err := fc.router.Execute(ctx, category, nil)
	if err != nil {
		if s.entry != nil {
			return s.entry, true, nil
		}
		return nil, false, errors.Join(ErrNoCacheEntry, err)
	}

	entry := &models.CacheEntry{
		Category:         category,
		Payload:          payload,
		FetchedAt:        fc.now(),
		TTL:              fc.ttlFor(category),
		SourceProviderID: providerID,
	}
	s.entry = entry
	fc.kvStore(ctx, entry)
	return entry, false, nil
}

// Peek returns the current entry without fetching, for diagnostics.
func (fc *FeedCache) Peek(category models.Category) (*models.CacheEntry, bool) {
	s := fc.slotFor(category)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil, false
	}
	return s.entry, true
}

func kvKey(category models.Category) string { return "feed:" + string(category) }

func (fc *FeedCache) kvLoad(ctx context.Context, category models.Category) *models.CacheEntry {
	var entry models.CacheEntry
	if err := fc.kv.Get(ctx, kvKey(category), &entry); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			fc.logger.Warn("kv cache read failed",
				xlogger.String("category", string(category)), xlogger.Error(err))
		}
		return nil
	}
	if entry.SourceProviderID == "" || entry.FetchedAt.IsZero() {
		return nil
	}
	return &entry
}

func (fc *FeedCache) kvStore(ctx context.Context, entry *models.CacheEntry) {
	if fc.kv == nil {
		return
	}
	// Keep the KV copy beyond its freshness window so peers can serve stale.
	if err := fc.kv.Set(ctx, kvKey(entry.Category), entry, entry.TTL*10); err != nil {
		fc.logger.Warn("kv cache write failed",
			xlogger.String("category", string(entry.Category)), xlogger.Error(err))
	}
}
