package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"FeedGate/internal/domain/models"
)

// providerBudget pairs a token-bucket minute limiter with a fixed hourly
// window counter. The minute path smooths bursts; the hour path enforces the
// hard upstream quota.
type providerBudget struct {
	mu        sync.Mutex
	minute    *rate.Limiter // nil = unlimited
	perHour   int           // 0 = unlimited
	hourStart time.Time
	hourUsed  int
}

// Budget tracks per-provider request quotas. A provider with no configured
// limits is always allowed.
type Budget struct {
	mu      sync.Mutex
	budgets map[string]*providerBudget

	now func() time.Time
}

// Option configures a Budget.
type Option func(*Budget)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Budget) { b.now = now }
}

// New creates an empty budget tracker.
func New(opts ...Option) *Budget {
	b := &Budget{budgets: make(map[string]*providerBudget), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register installs the quota for a provider. Re-registering resets usage.
func (b *Budget) Register(providerID string, limit models.RateLimit) {
	pb := &providerBudget{perHour: limit.PerHour, hourStart: b.now()}
	if limit.PerMinute > 0 {
		// Refill one quota over a minute; allow the full minute as burst so a
		// quiet provider can absorb a scheduling spike without overshooting.
		pb.minute = rate.NewLimiter(rate.Limit(float64(limit.PerMinute)/60.0), limit.PerMinute)
	}
	b.mu.Lock()
	b.budgets[providerID] = pb
	b.mu.Unlock()
}

func (b *Budget) budgetFor(providerID string) *providerBudget {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb, ok := b.budgets[providerID]
	if !ok {
		pb = &providerBudget{hourStart: b.now()}
		b.budgets[providerID] = pb
	}
	return pb
}

// Allow reports whether one request fits the provider's remaining quota
// without consuming it.
func (b *Budget) Allow(providerID string) bool {
	pb := b.budgetFor(providerID)
	now := b.now()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rollHourLocked(now)

	if pb.perHour > 0 && pb.hourUsed >= pb.perHour {
		return false
	}
	if pb.minute != nil && pb.minute.TokensAt(now) < 1 {
		return false
	}
	return true
}

// Consume debits one request from the provider's quota. Returns false when
// the quota was already exhausted.
func (b *Budget) Consume(providerID string) bool {
	pb := b.budgetFor(providerID)
	now := b.now()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rollHourLocked(now)

	if pb.perHour > 0 && pb.hourUsed >= pb.perHour {
		return false
	}
	if pb.minute != nil && !pb.minute.AllowN(now, 1) {
		return false
	}
	pb.hourUsed++
	return true
}

// Remaining returns hour-window usage for diagnostics. Unlimited providers
// report (-1, -1).
func (b *Budget) Remaining(providerID string) (used, quota int) {
	pb := b.budgetFor(providerID)
	now := b.now()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rollHourLocked(now)

	if pb.perHour <= 0 {
		return -1, -1
	}
	return pb.hourUsed, pb.perHour
}

func (pb *providerBudget) rollHourLocked(now time.Time) {
	if now.Sub(pb.hourStart) >= time.Hour {
		pb.hourStart = now
		pb.hourUsed = 0
	}
}
