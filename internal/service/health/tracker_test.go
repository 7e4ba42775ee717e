package health

import (
	"testing"
	"time"

	"FeedGate/internal/domain/models"
)

func record(t *Tracker, id string, ok int, fail int, latMs int64) {
	for i := 0; i < ok; i++ {
		t.RecordResult(id, true, latMs, models.ErrKindNone)
	}
	for i := 0; i < fail; i++ {
		t.RecordResult(id, false, latMs, models.ErrKindServerError)
	}
}

func TestStatusUnknownWithoutSamples(t *testing.T) {
	tr := NewTracker()
	if got := tr.Status("p1"); got != models.StatusUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name  string
		ok    int
		fail  int
		latMs int64
		want  models.HealthStatus
	}{
		{"online", 20, 0, 100, models.StatusOnline},
		{"online_boundary_rate", 19, 1, 100, models.StatusOnline}, // 0.95 exactly
		{"online_latency_bound", 20, 0, 1999, models.StatusOnline},
		{"degraded_latency", 20, 0, 2000, models.StatusDegraded}, // 2000 not < 2000
		{"degraded_rate", 16, 4, 100, models.StatusDegraded},     // 0.80 exactly
		{"slow", 14, 6, 100, models.StatusSlow},                  // 0.70 exactly
		{"slow_latency", 20, 0, 5000, models.StatusSlow},
		{"unstable", 10, 10, 100, models.StatusUnstable}, // 0.50 exactly
		{"offline", 2, 18, 100, models.StatusOffline},
		{"offline_slow_and_failing", 8, 12, 20000, models.StatusOffline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker()
			record(tr, "p", tc.ok, tc.fail, tc.latMs)
			if got := tr.Status("p"); got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestWindowBoundedByCount(t *testing.T) {
	tr := NewTracker(WithWindow(5, time.Hour))
	record(tr, "p", 0, 10, 100) // all failures
	record(tr, "p", 5, 0, 100)  // push failures out of the window
	if got := tr.Status("p"); got != models.StatusOnline {
		t.Fatalf("old failures should be evicted, got %s", got)
	}
	_, _, n, _ := tr.Snapshot("p")
	if n != 5 {
		t.Fatalf("expected 5 samples, got %d", n)
	}
}

func TestWindowBoundedByAge(t *testing.T) {
	now := time.Now()
	tr := NewTracker(WithWindow(100, 10*time.Minute), WithClock(func() time.Time { return now }))
	record(tr, "p", 0, 5, 100)
	now = now.Add(11 * time.Minute)
	record(tr, "p", 3, 0, 100)
	if got := tr.Status("p"); got != models.StatusOnline {
		t.Fatalf("aged failures should be evicted, got %s", got)
	}
}

func TestScoreOrdersByHealth(t *testing.T) {
	tr := NewTracker()
	tr.SetTier("good", 1)
	tr.SetTier("bad", 1)
	record(tr, "good", 20, 0, 100)
	record(tr, "bad", 5, 15, 100)
	if tr.Score("good") <= tr.Score("bad") {
		t.Fatalf("healthy provider must outscore failing one: %f <= %f",
			tr.Score("good"), tr.Score("bad"))
	}
}

func TestScoreTierBreaksEqualHealth(t *testing.T) {
	tr := NewTracker()
	tr.SetTier("t1", 1)
	tr.SetTier("t2", 2)
	record(tr, "t1", 10, 0, 100)
	record(tr, "t2", 10, 0, 100)
	if tr.Score("t1") <= tr.Score("t2") {
		t.Fatalf("lower tier must outscore: %f <= %f", tr.Score("t1"), tr.Score("t2"))
	}
}

func TestScoreLatencyPenalty(t *testing.T) {
	tr := NewTracker()
	tr.SetTier("fast", 1)
	tr.SetTier("laggy", 1)
	record(tr, "fast", 10, 0, 50)
	record(tr, "laggy", 10, 0, 9000)
	if tr.Score("fast") <= tr.Score("laggy") {
		t.Fatalf("latency must penalize score")
	}
}
