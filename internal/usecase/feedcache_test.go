package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FeedGate/internal/domain/models"
	xlogger "FeedGate/pkg/logger"
)

type fakeRouter struct {
	mu       sync.Mutex
	calls    int32
	payload  json.RawMessage
	provider string
	err      error
	delay    time.Duration
}

func (f *fakeRouter) Execute(ctx context.Context, category models.Category, params map[string]string) (json.RawMessage, string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	return f.payload, f.provider, nil
}

func (f *fakeRouter) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestFreshHitSkipsRouter(t *testing.T) {
	fr := &fakeRouter{payload: json.RawMessage(`{"v":1}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t), WithDefaultTTL(time.Minute))

	e1, stale, err := fc.GetOrFetch(context.Background(), models.CategoryMarketData)
	if err != nil || stale {
		t.Fatalf("first fetch: stale=%v err=%v", stale, err)
	}
	e2, stale, err := fc.GetOrFetch(context.Background(), models.CategoryMarketData)
	if err != nil || stale {
		t.Fatalf("second fetch: stale=%v err=%v", stale, err)
	}
	if e1 != e2 {
		t.Fatalf("expected the same cached entry")
	}
	if got := atomic.LoadInt32(&fr.calls); got != 1 {
		t.Fatalf("router should be called once, got %d", got)
	}
	if e1.SourceProviderID != "A" {
		t.Fatalf("entry must carry the source provider, got %q", e1.SourceProviderID)
	}
}

func TestExpiredEntryRefetches(t *testing.T) {
	now := time.Now()
	fr := &fakeRouter{payload: json.RawMessage(`{"v":1}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t),
		WithDefaultTTL(time.Minute),
		WithCacheClock(func() time.Time { return now }))

	if _, _, err := fc.GetOrFetch(context.Background(), models.CategoryNews); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, _, err := fc.GetOrFetch(context.Background(), models.CategoryNews); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if got := atomic.LoadInt32(&fr.calls); got != 2 {
		t.Fatalf("expected 2 router calls, got %d", got)
	}
}

func TestStaleIfError(t *testing.T) {
	now := time.Now()
	fr := &fakeRouter{payload: json.RawMessage(`{"v":1}`), provider: "A"}
	fc := NewFeedCache(fr, testLogger(t),
		WithCategoryTTL(models.CategoryNews, time.Minute),
		WithCacheClock(func() time.Time { return now }))

	if _, _, err := fc.GetOrFetch(context.Background(), models.CategoryNews); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	now = now.Add(2 * time.Minute)
	fr.setError(errors.New("upstream exhausted"))

	entry, stale, err := fc.GetOrFetch(context.Background(), models.CategoryNews)
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if !stale {
		t.Fatalf("expected stale=true")
	}
	if entry.SourceProviderID != "A" {
		t.Fatalf("stale entry must keep its original source, got %q", entry.SourceProviderID)
	}
}

func TestNoEntryErrorSurfaces(t *testing.T) {
	fr := &fakeRouter{}
	fr.setError(errors.New("upstream exhausted"))
	fc := NewFeedCache(fr, testLogger(t))

	_, _, err := fc.GetOrFetch(context.Background(), models.CategoryNews)
	if !errors.Is(err, ErrNoCacheEntry) {
		t.Fatalf("expected ErrNoCacheEntry, got %v", err)
	}
}

func TestConcurrentExpiryFetchesOnce(t *testing.T) {
	fr := &fakeRouter{payload: json.RawMessage(`{"v":1}`), provider: "A", delay: 20 * time.Millisecond}
	fc := NewFeedCache(fr, testLogger(t), WithDefaultTTL(time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := fc.GetOrFetch(context.Background(), models.CategoryMarketData); err != nil {
				t.Errorf("fetch: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&fr.calls); got != 1 {
		t.Fatalf("concurrent callers must share one fetch, got %d", got)
	}
}
