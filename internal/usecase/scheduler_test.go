package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"FeedGate/internal/domain/models"
)

type captureHub struct {
	mu      sync.Mutex
	updates []models.FeedUpdate
	errs    []models.ErrorData
	subs    int
}

func (c *captureHub) Publish(channel string, update models.FeedUpdate) {
	c.mu.Lock()
	c.updates = append(c.updates, update)
	c.mu.Unlock()
}

func (c *captureHub) PublishError(channel, code, message string) {
	c.mu.Lock()
	c.errs = append(c.errs, models.ErrorData{Code: code, Message: message})
	c.mu.Unlock()
}

func (c *captureHub) SubscriberCount(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs
}

func (c *captureHub) snapshot() ([]models.FeedUpdate, []models.ErrorData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.FeedUpdate(nil), c.updates...), append([]models.ErrorData(nil), c.errs...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSchedulerPublishesOnTick(t *testing.T) {
	fr := &fakeRouter{payload: []byte(`{"p":1}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t), WithDefaultTTL(time.Millisecond))
	capt := &captureHub{subs: 1}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "market_data", Category: models.CategoryMarketData, Interval: 10 * time.Millisecond},
	})
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		ups, _ := capt.snapshot()
		return len(ups) >= 2
	})
	ups, errs := capt.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if ups[0].SourceProviderID != "A" || ups[0].Stale {
		t.Fatalf("unexpected first update %+v", ups[0])
	}
}

func TestSchedulerPublishesErrorOnExhaustion(t *testing.T) {
	fr := &fakeRouter{}
	fr.setError(&AllProvidersFailedError{Category: models.CategoryNews})
	fc := NewFeedCache(fr, testLogger(t))
	capt := &captureHub{subs: 1}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "news", Category: models.CategoryNews, Interval: 10 * time.Millisecond},
	})
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		_, errs := capt.snapshot()
		return len(errs) >= 1
	})
	_, errs := capt.snapshot()
	if errs[0].Code != "all_providers_failed" {
		t.Fatalf("expected all_providers_failed, got %s", errs[0].Code)
	}
}

func TestSchedulerServesStaleOnLaterFailure(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	fr := &fakeRouter{payload: []byte(`{"p":1}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t),
		WithDefaultTTL(time.Minute), WithCacheClock(clock))
	capt := &captureHub{subs: 1}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "market_data", Category: models.CategoryMarketData, Interval: 10 * time.Millisecond},
	})
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		ups, _ := capt.snapshot()
		return len(ups) >= 1
	})

	// Expire the entry and make the router fail: ticks must now serve stale.
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	fr.setError(&AllProvidersFailedError{Category: models.CategoryMarketData})

	waitFor(t, time.Second, func() bool {
		ups, _ := capt.snapshot()
		return len(ups) > 0 && ups[len(ups)-1].Stale
	})
	ups, errs := capt.snapshot()
	last := ups[len(ups)-1]
	if last.SourceProviderID != "A" {
		t.Fatalf("stale update must keep the cached source, got %s", last.SourceProviderID)
	}
	if len(errs) != 0 {
		t.Fatalf("stale service must not surface errors, got %+v", errs)
	}
}

func TestSchedulerKeepWarmInterval(t *testing.T) {
	fr := &fakeRouter{payload: []byte(`{}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t), WithDefaultTTL(time.Nanosecond))
	capt := &captureHub{subs: 0}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "market_data", Category: models.CategoryMarketData,
			Interval: 5 * time.Millisecond, IdleInterval: time.Hour},
	})
	s.Start(context.Background())
	defer s.Stop()

	// The immediate fetch runs, then the loop settles on the idle cadence.
	waitFor(t, time.Second, func() bool {
		ups, _ := capt.snapshot()
		return len(ups) == 1
	})
	time.Sleep(50 * time.Millisecond)
	ups, _ := capt.snapshot()
	if len(ups) != 1 {
		t.Fatalf("idle channel should be throttled, got %d publishes", len(ups))
	}
}

func TestSchedulerStopDrains(t *testing.T) {
	fr := &fakeRouter{payload: []byte(`{}`), provider: "A", delay: 10 * time.Millisecond}
	fc := NewFeedCache(fr, testLogger(t), WithDefaultTTL(time.Nanosecond))
	capt := &captureHub{subs: 1}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "market_data", Category: models.CategoryMarketData, Interval: 5 * time.Millisecond},
	})
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop() // must return, not hang on in-flight ticks

	snapLen := func() int { ups, _ := capt.snapshot(); return len(ups) }
	n := snapLen()
	time.Sleep(30 * time.Millisecond)
	if snapLen() != n {
		t.Fatalf("no publishes may happen after Stop")
	}
}

// gateRouter blocks Execute until released, to hold a tick in flight.
type gateRouter struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateRouter) Execute(ctx context.Context, category models.Category, params map[string]string) (json.RawMessage, string, error) {
	g.entered <- struct{}{}
	<-g.release
	return json.RawMessage(`{"p":1}`), "A", nil
}

func TestSchedulerStopLetsInFlightTickFinish(t *testing.T) {
	gr := &gateRouter{entered: make(chan struct{}), release: make(chan struct{})}
	fc := NewFeedCache(gr, testLogger(t), WithDefaultTTL(time.Minute))
	capt := &captureHub{subs: 1}

	s := NewScheduler(fc, capt, nil, nopMetrics{}, testLogger(t), []ChannelConfig{
		{Name: "market_data", Category: models.CategoryMarketData, Interval: time.Hour},
	})
	s.Start(context.Background())
	<-gr.entered // the immediate tick is mid-fetch

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop must wait for the in-flight tick")
	case <-time.After(20 * time.Millisecond):
	}

	close(gr.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return after the tick finished")
	}

	ups, errs := capt.snapshot()
	if len(ups) != 1 || len(errs) != 0 {
		t.Fatalf("in-flight tick must publish its result, got %d updates %d errors", len(ups), len(errs))
	}
}
