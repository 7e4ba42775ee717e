package usecase

import (
	"context"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	xlogger "FeedGate/pkg/logger"
)

// Firehose mirrors published feed updates to a Kafka topic for out-of-band
// consumers. Mirroring is best-effort: a sink failure is logged and never
// blocks or fails the broadcast path.
type Firehose struct {
	pub    drepo.Publisher
	topic  string
	logger *xlogger.Logger
}

// NewFirehose creates an update mirror. Returns nil when no publisher is
// configured, which callers treat as disabled.
func NewFirehose(pub drepo.Publisher, topic string, logger *xlogger.Logger) *Firehose {
	if pub == nil || topic == "" {
		return nil
	}
	return &Firehose{pub: pub, topic: topic, logger: logger}
}

// Mirror publishes one update keyed by channel, preserving per-channel order.
func (f *Firehose) Mirror(ctx context.Context, update models.FeedUpdate) {
	if err := f.pub.Publish(ctx, f.topic, []byte(update.Channel), update); err != nil {
		f.logger.Warn("firehose publish failed",
			xlogger.String("channel", update.Channel), xlogger.Error(err))
	}
}

// Close releases the underlying producer.
func (f *Firehose) Close() error {
	if f == nil {
		return nil
	}
	return f.pub.Close()
}
