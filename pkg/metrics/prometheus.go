package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FeedGate/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchAttempts   *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	providerStatus  *prometheus.GaugeVec
	providerScore   *prometheus.GaugeVec
	circuitState    *prometheus.GaugeVec
	channelLastTick *prometheus.GaugeVec
	channelStale    *prometheus.GaugeVec
	subscribers     *prometheus.GaugeVec
	droppedMessages *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedgate_fetch_attempts_total",
				Help: "Total upstream fetch attempts per provider",
			},
			[]string{"provider", "category"},
		),
		fetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedgate_fetch_errors_total",
				Help: "Total classified fetch failures per provider",
			},
			[]string{"provider", "kind"},
		),
		fetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedgate_fetch_duration_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		providerStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_provider_status",
				Help: "Provider health status (1 for the active status label)",
			},
			[]string{"provider", "status"},
		),
		providerScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_provider_score",
				Help: "Composite provider health score in [0,1]",
			},
			[]string{"provider"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_circuit_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		channelLastTick: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_channel_last_fetch_timestamp",
				Help: "Unix time of the last completed fetch per channel",
			},
			[]string{"channel"},
		),
		channelStale: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_channel_stale",
				Help: "Whether the channel is currently serving stale data",
			},
			[]string{"channel"},
		),
		subscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedgate_subscribers",
				Help: "Current subscriber count per channel",
			},
			[]string{"channel"},
		),
		droppedMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedgate_dropped_messages_total",
				Help: "Messages dropped from slow subscriber queues",
			},
			[]string{"channel"},
		),
	}
}

func (r *Recorder) RecordFetchAttempt(providerID string, category models.Category) {
	r.fetchAttempts.WithLabelValues(providerID, string(category)).Inc()
}

func (r *Recorder) RecordFetchError(providerID string, kind models.ErrorKind) {
	r.fetchErrors.WithLabelValues(providerID, string(kind)).Inc()
}

func (r *Recorder) RecordFetchLatency(providerID string, seconds float64) {
	r.fetchLatency.WithLabelValues(providerID).Observe(seconds)
}

// RecordProviderStatus flips the status gauge family so exactly one status
// label carries 1 for the provider, and updates the composite score.
func (r *Recorder) RecordProviderStatus(providerID string, status models.HealthStatus, score float64) {
	for _, s := range models.AllHealthStatuses {
		v := 0.0
		if s == status {
			v = 1.0
		}
		r.providerStatus.WithLabelValues(providerID, string(s)).Set(v)
	}
	r.providerScore.WithLabelValues(providerID).Set(score)
}

func (r *Recorder) RecordCircuitState(providerID string, state models.CircuitState) {
	var v float64
	switch state {
	case models.CircuitHalfOpen:
		v = 1
	case models.CircuitOpen:
		v = 2
	}
	r.circuitState.WithLabelValues(providerID).Set(v)
}

func (r *Recorder) RecordChannelFetch(channel string, at time.Time, stale bool) {
	r.channelLastTick.WithLabelValues(channel).Set(float64(at.Unix()))
	v := 0.0
	if stale {
		v = 1.0
	}
	r.channelStale.WithLabelValues(channel).Set(v)
}

func (r *Recorder) RecordSubscribers(channel string, n int) {
	r.subscribers.WithLabelValues(channel).Set(float64(n))
}

func (r *Recorder) RecordDroppedMessage(channel string) {
	r.droppedMessages.WithLabelValues(channel).Inc()
}
