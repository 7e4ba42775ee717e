package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"FeedGate/internal/domain/models"
)

// Fetcher performs one upstream call for a provider. Implementations must be
// retry-free, respect the ctx deadline, and classify failures into the
// models.ErrorKind vocabulary via FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, desc models.FetchDescriptor, params map[string]string) (json.RawMessage, error)
}

// FetchError carries the classified kind alongside the underlying cause.
type FetchError struct {
	Kind models.ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf extracts the error kind from a fetch error chain; unclassified
// errors default to bad_payload.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrKindNone
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return models.ErrKindBadPayload
}

// Publisher mirrors feed updates to an out-of-band sink (Kafka firehose).
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// Metrics is the observability surface the gateway records into.
type Metrics interface {
	RecordFetchAttempt(providerID string, category models.Category)
	RecordFetchError(providerID string, kind models.ErrorKind)
	RecordFetchLatency(providerID string, seconds float64)
	RecordProviderStatus(providerID string, status models.HealthStatus, score float64)
	RecordCircuitState(providerID string, state models.CircuitState)
	RecordChannelFetch(channel string, at time.Time, stale bool)
	RecordSubscribers(channel string, n int)
	RecordDroppedMessage(channel string)
}
