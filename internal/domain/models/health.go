package models

import "time"

// ErrorKind classifies a failed fetch attempt.
type ErrorKind string

const (
	ErrKindNone        ErrorKind = "none"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindConnect     ErrorKind = "connect"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindServerError ErrorKind = "server_error"
	ErrKindBadPayload  ErrorKind = "bad_payload"
)

// HealthSample is one observed fetch outcome. Samples live only inside the
// tracker's bounded rolling window.
type HealthSample struct {
	Timestamp time.Time
	Success   bool
	LatencyMs int64
	ErrorKind ErrorKind
}

// HealthStatus is derived from the rolling window on demand, never stored.
type HealthStatus string

const (
	StatusOnline   HealthStatus = "ONLINE"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusSlow     HealthStatus = "SLOW"
	StatusUnstable HealthStatus = "UNSTABLE"
	StatusOffline  HealthStatus = "OFFLINE"
	StatusUnknown  HealthStatus = "UNKNOWN"
)

// AllHealthStatuses enumerates every derivable status, in severity order.
var AllHealthStatuses = []HealthStatus{
	StatusOnline,
	StatusDegraded,
	StatusSlow,
	StatusUnstable,
	StatusOffline,
	StatusUnknown,
}

// CircuitState is owned exclusively by the breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)
