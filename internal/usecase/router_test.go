package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	"FeedGate/internal/registry"
	"FeedGate/internal/service/breaker"
	"FeedGate/internal/service/health"
	"FeedGate/internal/service/ratelimit"
)

type nopMetrics struct{}

func (nopMetrics) RecordFetchAttempt(string, models.Category)                {}
func (nopMetrics) RecordFetchError(string, models.ErrorKind)                 {}
func (nopMetrics) RecordFetchLatency(string, float64)                        {}
func (nopMetrics) RecordProviderStatus(string, models.HealthStatus, float64) {}
func (nopMetrics) RecordCircuitState(string, models.CircuitState)            {}
func (nopMetrics) RecordChannelFetch(string, time.Time, bool)                {}
func (nopMetrics) RecordSubscribers(string, int)                             {}
func (nopMetrics) RecordDroppedMessage(string)                               {}

// scriptFetcher routes each fetch by the descriptor URL, which the tests use
// as the provider name.
type scriptFetcher struct {
	mu      sync.Mutex
	results map[string]error // provider name -> scripted failure (nil = success)
	calls   []string
}

func (f *scriptFetcher) Fetch(ctx context.Context, desc models.FetchDescriptor, params map[string]string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, desc.URL)
	if err := f.results[desc.URL]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"from":"` + desc.URL + `"}`), nil
}

func (f *scriptFetcher) callsTo(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *scriptFetcher) set(name string, err error) {
	f.mu.Lock()
	f.results[name] = err
	f.mu.Unlock()
}

type routerFixture struct {
	reg     *registry.Registry
	tracker *health.Tracker
	budget  *ratelimit.Budget
	brk     *breaker.Breaker
	fetch   *scriptFetcher
	router  *FallbackRouter
}

func newRouterFixture(t *testing.T, cfg RouterConfig) *routerFixture {
	t.Helper()
	fx := &routerFixture{
		reg:     registry.New(),
		tracker: health.NewTracker(),
		budget:  ratelimit.New(),
		brk:     breaker.New(breaker.DefaultConfig()),
		fetch:   &scriptFetcher{results: make(map[string]error)},
	}
	fx.router = NewFallbackRouter(fx.reg, fx.tracker, fx.budget, fx.brk, fx.fetch, nopMetrics{}, testLogger(t), cfg)
	return fx
}

func (fx *routerFixture) addProvider(t *testing.T, id string, tier int) {
	t.Helper()
	p := models.Provider{
		ID:         id,
		Category:   models.CategoryMarketData,
		Tier:       tier,
		Descriptor: models.FetchDescriptor{URL: id},
	}
	if err := fx.reg.Register(p); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	fx.tracker.SetTier(id, tier)
	fx.budget.Register(id, p.RateLimit)
}

func serverErr() error {
	return &drepo.FetchError{Kind: models.ErrKindServerError, Err: errors.New("boom")}
}

func TestExecuteUsesPreferredProvider(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 2)

	payload, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "a" {
		t.Fatalf("tier 1 provider should be tried first, got %s", id)
	}
	if string(payload) != `{"from":"a"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestExecuteFallsBackOnFailure(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 2)
	fx.fetch.set("a", serverErr())

	_, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "b" {
		t.Fatalf("should fall back to b, got %s", id)
	}
	if fx.fetch.callsTo("a") != 1 {
		t.Fatalf("a should have been tried once")
	}
}

func TestExecuteRanksByScore(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 1)

	// Poison a's health so b outscores it despite equal tier.
	for i := 0; i < 10; i++ {
		fx.tracker.RecordResult("a", false, 100, models.ErrKindServerError)
		fx.tracker.RecordResult("b", true, 100, models.ErrKindNone)
	}

	_, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "b" {
		t.Fatalf("higher score should be tried first, got %s", id)
	}
}

func TestExecuteSkipsOpenCircuit(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 2)
	for i := 0; i < 3; i++ {
		fx.brk.RecordFailure("a")
	}

	_, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "b" {
		t.Fatalf("open circuit must be skipped, got %s", id)
	}
	if fx.fetch.callsTo("a") != 0 {
		t.Fatalf("a must not be called while its circuit is open")
	}
}

func TestExecuteSkipsExhaustedBudget(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 2)
	fx.budget.Register("a", models.RateLimit{PerHour: 1})
	if !fx.budget.Consume("a") {
		t.Fatalf("seed consume")
	}

	_, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "b" {
		t.Fatalf("exhausted budget must be skipped, got %s", id)
	}
}

func TestExecuteAllFailed(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "a", 1)
	fx.addProvider(t, "b", 2)
	fx.fetch.set("a", serverErr())
	fx.fetch.set("b", serverErr())

	_, _, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if len(all.Attempted) != 2 {
		t.Fatalf("both providers should have been attempted, got %v", all.Attempted)
	}
	if all.Category != models.CategoryMarketData {
		t.Fatalf("error must carry the category")
	}
}

func TestExecuteNoCandidates(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	_, _, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
}

func TestExecuteHonorsMaxAttempts(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{MaxAttempts: 2})
	for _, id := range []string{"a", "b", "c"} {
		fx.addProvider(t, id, 1)
		fx.fetch.set(id, serverErr())
	}

	_, _, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if len(all.Attempted) != 2 {
		t.Fatalf("max_attempts=2 must cap attempts, got %v", all.Attempted)
	}
}

func TestFailuresTripCircuitAcrossExecutes(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{MaxAttempts: 1})
	fx.addProvider(t, "a", 1)
	fx.fetch.set("a", serverErr())

	for i := 0; i < 3; i++ {
		_, _, _ = fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	}
	if fx.brk.State("a") != models.CircuitOpen {
		t.Fatalf("three failed executes should open the circuit, got %s", fx.brk.State("a"))
	}
	// The next execute has no eligible candidate and must not touch a.
	before := fx.fetch.callsTo("a")
	_, _, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if fx.fetch.callsTo("a") != before {
		t.Fatalf("open circuit must short-circuit the fetch")
	}
}

func TestExecuteDeterministicTieBreak(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	fx.addProvider(t, "zeta", 1)
	fx.addProvider(t, "alpha", 1)

	_, id, err := fx.router.Execute(context.Background(), models.CategoryMarketData, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id != "alpha" {
		t.Fatalf("equal scores must break by lexical id, got %s", id)
	}
}

// gateFetcher blocks fetches for one provider until released, so a test can
// interleave work while an Execute is mid-flight.
type gateFetcher struct {
	inner   *scriptFetcher
	gated   string
	entered chan struct{}
	release chan struct{}
}

func (f *gateFetcher) Fetch(ctx context.Context, desc models.FetchDescriptor, params map[string]string) (json.RawMessage, error) {
	if desc.URL == f.gated {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.inner.Fetch(ctx, desc, params)
}

func TestBudgetSkipReturnsHalfOpenTrial(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	reg := registry.New()
	tracker := health.NewTracker()
	budget := ratelimit.New(ratelimit.WithClock(clock))
	brk := breaker.New(breaker.DefaultConfig(), breaker.WithClock(clock))
	script := &scriptFetcher{results: map[string]error{"alpha": serverErr()}}
	fetch := &gateFetcher{
		inner:   script,
		gated:   "alpha",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	router := NewFallbackRouter(reg, tracker, budget, brk, fetch, nopMetrics{}, testLogger(t), RouterConfig{})

	for _, id := range []string{"alpha", "zulu"} {
		p := models.Provider{
			ID:         id,
			Category:   models.CategoryMarketData,
			Tier:       1,
			Descriptor: models.FetchDescriptor{URL: id},
		}
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		tracker.SetTier(id, 1)
	}
	budget.Register("zulu", models.RateLimit{PerHour: 1})

	// zulu's circuit is open with its cooldown elapsed, so the next admission
	// hands out the single half-open trial token.
	for i := 0; i < 3; i++ {
		brk.RecordFailure("zulu")
	}
	now = now.Add(10 * time.Second)

	done := make(chan error, 1)
	go func() {
		_, _, err := router.Execute(context.Background(), models.CategoryMarketData, nil)
		done <- err
	}()

	// While alpha's fetch is in flight, drain zulu's last hourly token. The
	// router will then take zulu's trial token but fail to consume budget.
	<-fetch.entered
	if !budget.Consume("zulu") {
		t.Fatalf("seed consume")
	}
	close(fetch.release)

	var all *AllProvidersFailedError
	if err := <-done; !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if script.callsTo("zulu") != 0 {
		t.Fatalf("zulu must not be fetched without budget")
	}

	// Once the hour window rolls, zulu must be admittable again: the unused
	// trial token was handed back, not leaked.
	now = now.Add(2 * time.Hour)
	if err := brk.Allow("zulu"); err != nil {
		t.Fatalf("zulu must be re-admitted after budget refill, got %v", err)
	}
}
