package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	"FeedGate/internal/registry"
	"FeedGate/internal/service/breaker"
	"FeedGate/internal/service/health"
	"FeedGate/internal/service/ratelimit"
	xlogger "FeedGate/pkg/logger"
)

// AllProvidersFailedError is the router's terminal error: every eligible
// candidate was tried and failed, or none were eligible at all.
type AllProvidersFailedError struct {
	Category  models.Category
	Attempted []string
	LastErrs  map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("router: no eligible providers for %s", e.Category)
	}
	parts := make([]string, 0, len(e.Attempted))
	for _, id := range e.Attempted {
		if err := e.LastErrs[id]; err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", id, err))
		}
	}
	return fmt.Sprintf("router: all providers failed for %s [%s]", e.Category, strings.Join(parts, "; "))
}

// RouterConfig holds fallback routing tunables.
type RouterConfig struct {
	MaxAttempts    int           // cap on candidates tried per Execute
	AttemptTimeout time.Duration // per-attempt fetch deadline
	ExecuteTimeout time.Duration // overall deadline across all attempts
}

// DefaultRouterConfig returns the stock routing tunables.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{MaxAttempts: 4, AttemptTimeout: 8 * time.Second, ExecuteTimeout: 30 * time.Second}
}

// FallbackRouter selects and tries providers for a category in health-score
// order, skipping open circuits and exhausted rate budgets. All retry policy
// lives here; the Fetcher is retry-free.
type FallbackRouter struct {
	reg     *registry.Registry
	tracker *health.Tracker
	budget  *ratelimit.Budget
	brk     *breaker.Breaker
	fetcher drepo.Fetcher
	metrics drepo.Metrics
	logger  *xlogger.Logger
	cfg     RouterConfig
}

// NewFallbackRouter wires the router with its collaborators.
func NewFallbackRouter(
	reg *registry.Registry,
	tracker *health.Tracker,
	budget *ratelimit.Budget,
	brk *breaker.Breaker,
	fetcher drepo.Fetcher,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
	cfg RouterConfig,
) *FallbackRouter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRouterConfig().MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultRouterConfig().AttemptTimeout
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = DefaultRouterConfig().ExecuteTimeout
	}
	return &FallbackRouter{
		reg:     reg,
		tracker: tracker,
		budget:  budget,
		brk:     brk,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

type candidate struct {
	provider models.Provider
	score    float64
}

// Execute tries providers for the category until one succeeds. Returns the
// payload and the id of the provider that served it.
func (r *FallbackRouter) Execute(ctx context.Context, category models.Category, params map[string]string) (json.RawMessage, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExecuteTimeout)
	defer cancel()

	candidates := r.eligible(category)
	if len(candidates) == 0 {
		return nil, "", &AllProvidersFailedError{Category: category}
	}

	maxAttempts := r.cfg.MaxAttempts
	if len(candidates) < maxAttempts {
		maxAttempts = len(candidates)
	}

	failed := &AllProvidersFailedError{Category: category, LastErrs: make(map[string]error)}
	for _, c := range candidates[:maxAttempts] {
		if err := ctx.Err(); err != nil {
			failed.LastErrs["_deadline"] = err
			break
		}
		// Circuit admission happens per attempt: a half-open trial token is
		// taken here, not during candidate filtering.
		if err := r.brk.Allow(c.provider.ID); err != nil {
			continue
		}
		if !r.budget.Consume(c.provider.ID) {
			// Allow may have handed out the half-open trial token; hand it
			// back or the provider stays rejected until the process restarts.
			r.brk.CancelTrial(c.provider.ID)
			continue
		}

		payload, err := r.attempt(ctx, c.provider, params)
		if err == nil {
			return payload, c.provider.ID, nil
		}
		failed.Attempted = append(failed.Attempted, c.provider.ID)
		failed.LastErrs[c.provider.ID] = err
	}

	r.logger.Warn("all providers failed",
		xlogger.String("category", string(category)),
		xlogger.Strings("attempted", failed.Attempted),
	)
	return nil, "", failed
}

// eligible filters and ranks candidates: enabled, circuit not hard-open,
// budget not exhausted; ranked by score desc, ties by tier then id.
func (r *FallbackRouter) eligible(category models.Category) []candidate {
	providers := r.reg.ProvidersFor(category)
	candidates := make([]candidate, 0, len(providers))
	for _, p := range providers {
		if st := r.brk.State(p.ID); st == models.CircuitOpen {
			continue
		}
		if !r.budget.Allow(p.ID) {
			continue
		}
		candidates = append(candidates, candidate{provider: p, score: r.tracker.Score(p.ID)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].provider.Tier != candidates[j].provider.Tier {
			return candidates[i].provider.Tier < candidates[j].provider.Tier
		}
		return candidates[i].provider.ID < candidates[j].provider.ID
	})
	return candidates
}

// attempt runs a single bounded fetch and records the outcome everywhere.
func (r *FallbackRouter) attempt(ctx context.Context, p models.Provider, params map[string]string) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	r.metrics.RecordFetchAttempt(p.ID, p.Category)
	start := time.Now()
	payload, err := r.fetcher.Fetch(attemptCtx, p.Descriptor, params)
	elapsed := time.Since(start)
	r.metrics.RecordFetchLatency(p.ID, elapsed.Seconds())

	if err != nil {
		kind := drepo.KindOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			kind = models.ErrKindTimeout
		}
		r.tracker.RecordResult(p.ID, false, elapsed.Milliseconds(), kind)
		r.brk.RecordFailure(p.ID)
		r.metrics.RecordFetchError(p.ID, kind)
		r.observe(p.ID)
		r.logger.Warn("provider fetch failed",
			xlogger.String("provider", p.ID),
			xlogger.String("kind", string(kind)),
			xlogger.Duration("latency_ms", elapsed),
			xlogger.Error(err),
		)
		return nil, err
	}

	r.tracker.RecordResult(p.ID, true, elapsed.Milliseconds(), models.ErrKindNone)
	r.brk.RecordSuccess(p.ID)
	r.observe(p.ID)
	return payload, nil
}

func (r *FallbackRouter) observe(providerID string) {
	r.metrics.RecordProviderStatus(providerID, r.tracker.Status(providerID), r.tracker.Score(providerID))
	r.metrics.RecordCircuitState(providerID, r.brk.State(providerID))
}
