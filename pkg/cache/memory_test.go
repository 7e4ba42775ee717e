package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(10))
	defer mc.Close()
	ctx := context.Background()

	in := payload{Symbol: "BTC", Price: 64250.5}
	if err := mc.Set(ctx, "quote:btc", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out payload
	if err := mc.Get(ctx, "quote:btc", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	var out payload
	err := mc.Get(context.Background(), "missing", &out)
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	var out string
	if err := mc.Get(ctx, "k", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:refresh", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}

	ok, err = mc.TryLock(ctx, "lock:refresh", time.Minute)
	if err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}

	if err := mc.Unlock(ctx, "lock:refresh"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	ok, err = mc.TryLock(ctx, "lock:refresh", time.Minute)
	if err != nil || !ok {
		t.Fatalf("relock after unlock: ok=%v err=%v", ok, err)
	}
}
