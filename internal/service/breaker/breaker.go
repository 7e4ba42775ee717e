package breaker

import (
	"errors"
	"sync"
	"time"

	"FeedGate/internal/domain/models"
)

// ErrCircuitOpen is returned while a provider's breaker rejects calls.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// Config holds breaker tunables.
type Config struct {
	FailureThreshold int           // consecutive failures to trip
	BaseDelay        time.Duration // first cooldown
	MaxDelay         time.Duration // cooldown cap
}

// DefaultConfig returns the stock breaker tunables.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, BaseDelay: 5 * time.Second, MaxDelay: 5 * time.Minute}
}

// circuit is the per-provider state machine. All transitions happen under mu,
// the single point of mutation for that provider.
type circuit struct {
	mu           sync.Mutex
	state        models.CircuitState
	failures     int
	openUntil    time.Time
	cooldown     time.Duration
	trialPending bool // half-open trial token is out
}

// Breaker gates whether a provider may be tried. One circuit per provider;
// unrelated providers never contend.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      Config

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker with the given config.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	b := &Breaker{circuits: make(map[string]*circuit), cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) circuitFor(providerID string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[providerID]
	if !ok {
		c = &circuit{state: models.CircuitClosed, cooldown: b.cfg.BaseDelay}
		b.circuits[providerID] = c
	}
	return c
}

// Allow reports whether a call may proceed. When the cooldown of an OPEN
// circuit has elapsed it hands out exactly one HALF_OPEN trial token;
// concurrent callers keep seeing ErrCircuitOpen until the trial resolves.
func (b *Breaker) Allow(providerID string) error {
	c := b.circuitFor(providerID)
	now := b.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.CircuitClosed:
		return nil
	case models.CircuitOpen:
		if now.Before(c.openUntil) {
			return ErrCircuitOpen
		}
		c.state = models.CircuitHalfOpen
		c.trialPending = true
		return nil
	case models.CircuitHalfOpen:
		if c.trialPending {
			return ErrCircuitOpen
		}
		c.trialPending = true
		return nil
	}
	return nil
}

// CancelTrial returns a half-open trial token that was handed out by Allow
// but never dispatched. Without it a caller that is admitted and then skips
// the call for an unrelated reason would leave the token out forever,
// locking every future caller behind ErrCircuitOpen.
func (b *Breaker) CancelTrial(providerID string) {
	c := b.circuitFor(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == models.CircuitHalfOpen && c.trialPending {
		c.trialPending = false
	}
}

// RecordSuccess resolves a call that went through.
func (b *Breaker) RecordSuccess(providerID string) {
	c := b.circuitFor(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.trialPending = false
	c.state = models.CircuitClosed
	c.cooldown = b.cfg.BaseDelay
}

// RecordFailure resolves a failed call; trips CLOSED after the threshold and
// re-trips HALF_OPEN immediately with an escalated cooldown.
func (b *Breaker) RecordFailure(providerID string) {
	c := b.circuitFor(providerID)
	now := b.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.CircuitClosed:
		c.failures++
		if c.failures >= b.cfg.FailureThreshold {
			c.trip(now)
		}
	case models.CircuitHalfOpen:
		c.trialPending = false
		c.cooldown *= 2
		if c.cooldown > b.cfg.MaxDelay {
			c.cooldown = b.cfg.MaxDelay
		}
		c.trip(now)
	case models.CircuitOpen:
		// Late failure from a call admitted before the trip; nothing to do.
	}
}

func (c *circuit) trip(now time.Time) {
	c.state = models.CircuitOpen
	c.openUntil = now.Add(c.cooldown)
	c.failures = 0
}

// State returns the provider's current circuit state. An elapsed OPEN
// cooldown reads as HALF_OPEN, matching what Allow would do.
func (b *Breaker) State(providerID string) models.CircuitState {
	c := b.circuitFor(providerID)
	now := b.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == models.CircuitOpen && !now.Before(c.openUntil) {
		return models.CircuitHalfOpen
	}
	return c.state
}
