package ratelimit

import (
	"testing"
	"time"

	"FeedGate/internal/domain/models"
)

func TestUnregisteredProviderUnlimited(t *testing.T) {
	b := New()
	for i := 0; i < 100; i++ {
		if !b.Consume("p") {
			t.Fatalf("unlimited provider denied at %d", i)
		}
	}
}

func TestHourlyQuotaExhaustion(t *testing.T) {
	now := time.Now()
	b := New(WithClock(func() time.Time { return now }))
	b.Register("p", models.RateLimit{PerHour: 3})

	for i := 0; i < 3; i++ {
		if !b.Allow("p") || !b.Consume("p") {
			t.Fatalf("consume %d should succeed", i)
		}
	}
	if b.Allow("p") {
		t.Fatalf("allow should fail after quota used")
	}
	if b.Consume("p") {
		t.Fatalf("consume should fail after quota used")
	}
}

func TestHourlyQuotaRolls(t *testing.T) {
	now := time.Now()
	b := New(WithClock(func() time.Time { return now }))
	b.Register("p", models.RateLimit{PerHour: 1})

	if !b.Consume("p") {
		t.Fatalf("first consume should succeed")
	}
	if b.Consume("p") {
		t.Fatalf("quota should be exhausted")
	}
	now = now.Add(61 * time.Minute)
	if !b.Consume("p") {
		t.Fatalf("quota should reset after the hour rolls")
	}
}

func TestMinuteBurstThenDeny(t *testing.T) {
	now := time.Now()
	b := New(WithClock(func() time.Time { return now }))
	b.Register("p", models.RateLimit{PerMinute: 5})

	for i := 0; i < 5; i++ {
		if !b.Consume("p") {
			t.Fatalf("burst consume %d should succeed", i)
		}
	}
	if b.Allow("p") {
		t.Fatalf("minute bucket should be empty")
	}
	now = now.Add(time.Minute)
	if !b.Allow("p") {
		t.Fatalf("minute bucket should refill")
	}
}

func TestRemaining(t *testing.T) {
	b := New()
	b.Register("p", models.RateLimit{PerHour: 10})
	_ = b.Consume("p")
	used, quota := b.Remaining("p")
	if used != 1 || quota != 10 {
		t.Fatalf("unexpected remaining %d/%d", used, quota)
	}
	if u, q := New().Remaining("x"); u != -1 || q != -1 {
		t.Fatalf("unlimited should report -1, got %d/%d", u, q)
	}
}
