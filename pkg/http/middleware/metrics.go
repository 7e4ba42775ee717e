package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	applogger "FeedGate/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgate_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path", "method", "status"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedgate_http_in_flight_requests",
			Help: "HTTP requests currently being served",
		},
	)

	httpMetricsOnce sync.Once
)

// Metrics records request counts, latency, and in-flight gauge, and logs
// failures and slow requests through the app logger. Raw URL paths are used
// as the path label; the API surface is small and fixed, so cardinality
// stays bounded.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	httpMetricsOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			method := r.Method

			httpInFlight.Inc()
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			status := strconv.Itoa(sw.status)
			httpRequestsTotal.WithLabelValues(path, method, status).Inc()
			httpRequestDuration.WithLabelValues(path, method, status).Observe(elapsed.Seconds())
			httpInFlight.Dec()

			if l == nil {
				return
			}
			switch {
			case sw.status >= 500:
				l.Error("http request failed",
					applogger.String("path", path),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration", elapsed),
				)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("path", path),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration", elapsed),
				)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
