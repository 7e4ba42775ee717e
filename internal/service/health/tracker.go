package health

import (
	"sort"
	"sync"
	"time"

	"FeedGate/internal/domain/models"
)

// Thresholds drive status classification. All values are per-tracker config
// so categories can tune them independently.
type Thresholds struct {
	OnlineSuccessRate   float64
	OnlineMaxLatencyMs  float64
	DegradedSuccessRate float64
	DegradedMaxLatMs    float64
	SlowSuccessRate     float64
	SlowMaxLatencyMs    float64
	UnstableSuccessRate float64
}

// DefaultThresholds returns the stock classification bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OnlineSuccessRate:   0.95,
		OnlineMaxLatencyMs:  2000,
		DegradedSuccessRate: 0.80,
		DegradedMaxLatMs:    5000,
		SlowSuccessRate:     0.70,
		SlowMaxLatencyMs:    10000,
		UnstableSuccessRate: 0.50,
	}
}

// ScoreWeights tune the composite provider score used for routing order.
type ScoreWeights struct {
	SuccessRate float64
	Latency     float64
	Tier        float64
	// NormalizeLatencyMs is the latency mapped to a zero latency term.
	NormalizeLatencyMs float64
}

// DefaultScoreWeights returns the stock score weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{SuccessRate: 0.5, Latency: 0.3, Tier: 0.2, NormalizeLatencyMs: 10000}
}

type window struct {
	mu      sync.Mutex
	samples []models.HealthSample // ring, oldest first
}

// Tracker keeps a bounded rolling window of fetch outcomes per provider.
// Each provider owns its window; mutation is serialized per provider so
// unrelated providers record in parallel.
type Tracker struct {
	mu         sync.RWMutex
	windows    map[string]*window
	maxSamples int
	maxAge     time.Duration
	thresholds Thresholds
	weights    ScoreWeights
	tiers      map[string]int

	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow bounds the rolling window to k samples within age.
func WithWindow(k int, age time.Duration) Option {
	return func(t *Tracker) {
		if k > 0 {
			t.maxSamples = k
		}
		if age > 0 {
			t.maxAge = age
		}
	}
}

// WithThresholds overrides classification bands.
func WithThresholds(th Thresholds) Option {
	return func(t *Tracker) { t.thresholds = th }
}

// WithScoreWeights overrides score weighting.
func WithScoreWeights(w ScoreWeights) Option {
	return func(t *Tracker) { t.weights = w }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a health tracker with K=20 samples / W=10min defaults.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windows:    make(map[string]*window),
		maxSamples: 20,
		maxAge:     10 * time.Minute,
		thresholds: DefaultThresholds(),
		weights:    DefaultScoreWeights(),
		tiers:      make(map[string]int),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetTier registers a provider's tier for score weighting.
func (t *Tracker) SetTier(providerID string, tier int) {
	t.mu.Lock()
	t.tiers[providerID] = tier
	t.mu.Unlock()
}

func (t *Tracker) windowFor(providerID string) *window {
	t.mu.RLock()
	w, ok := t.windows[providerID]
	t.mu.RUnlock()
	if ok {
		return w
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[providerID]; ok {
		return w
	}
	w = &window{}
	t.windows[providerID] = w
	return w
}

// RecordResult appends a sample and evicts anything outside the window.
func (t *Tracker) RecordResult(providerID string, success bool, latencyMs int64, kind models.ErrorKind) {
	w := t.windowFor(providerID)
	now := t.now()

	w.mu.Lock()
	w.samples = append(w.samples, models.HealthSample{
		Timestamp: now,
		Success:   success,
		LatencyMs: latencyMs,
		ErrorKind: kind,
	})
	t.evictLocked(w, now)
	w.mu.Unlock()
}

// evictLocked trims by count then by age; amortized O(1) per record.
func (t *Tracker) evictLocked(w *window, now time.Time) {
	if n := len(w.samples) - t.maxSamples; n > 0 {
		w.samples = append(w.samples[:0], w.samples[n:]...)
	}
	cutoff := now.Add(-t.maxAge)
	i := sort.Search(len(w.samples), func(i int) bool {
		return w.samples[i].Timestamp.After(cutoff)
	})
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

type stats struct {
	n           int
	successRate float64
	avgLatency  float64
	last        time.Time
}

func (t *Tracker) statsFor(providerID string) stats {
	w := t.windowFor(providerID)
	now := t.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	t.evictLocked(w, now)

	var s stats
	s.n = len(w.samples)
	if s.n == 0 {
		return s
	}
	var ok int
	var totalLat int64
	for _, sm := range w.samples {
		if sm.Success {
			ok++
		}
		totalLat += sm.LatencyMs
	}
	s.successRate = float64(ok) / float64(s.n)
	s.avgLatency = float64(totalLat) / float64(s.n)
	s.last = w.samples[s.n-1].Timestamp
	return s
}

// Status classifies the provider from its current window.
func (t *Tracker) Status(providerID string) models.HealthStatus {
	s := t.statsFor(providerID)
	if s.n == 0 {
		return models.StatusUnknown
	}
	th := t.thresholds
	switch {
	case s.successRate >= th.OnlineSuccessRate && s.avgLatency < th.OnlineMaxLatencyMs:
		return models.StatusOnline
	case s.successRate >= th.DegradedSuccessRate && s.avgLatency < th.DegradedMaxLatMs:
		return models.StatusDegraded
	case s.successRate >= th.SlowSuccessRate && s.avgLatency < th.SlowMaxLatencyMs:
		return models.StatusSlow
	case s.successRate >= th.UnstableSuccessRate:
		return models.StatusUnstable
	default:
		return models.StatusOffline
	}
}

// Score combines success rate, an inverse latency term, and tier weight.
// Providers with no samples score from tier alone plus a full success term,
// so untried providers are not starved behind established ones.
func (t *Tracker) Score(providerID string) float64 {
	s := t.statsFor(providerID)
	w := t.weights

	t.mu.RLock()
	tier := t.tiers[providerID]
	t.mu.RUnlock()
	if tier < 1 {
		tier = 1
	}
	tierTerm := w.Tier * (1.0 / float64(tier))

	if s.n == 0 {
		return w.SuccessRate + w.Latency + tierTerm
	}

	lat := s.avgLatency / w.NormalizeLatencyMs
	if lat > 1 {
		lat = 1
	}
	return w.SuccessRate*s.successRate + w.Latency*(1-lat) + tierTerm
}

// Snapshot returns the raw window stats for the diagnostics API.
func (t *Tracker) Snapshot(providerID string) (successRate, avgLatencyMs float64, samples int, last time.Time) {
	s := t.statsFor(providerID)
	return s.successRate, s.avgLatency, s.n, s.last
}
