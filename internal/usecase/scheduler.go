package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	xlogger "FeedGate/pkg/logger"
)

// Broadcaster is the hub surface the scheduler publishes into.
type Broadcaster interface {
	Publish(channel string, update models.FeedUpdate)
	PublishError(channel string, code, message string)
	SubscriberCount(channel string) int
}

// ChannelConfig describes one scheduled feed channel.
type ChannelConfig struct {
	Name     string
	Category models.Category
	Interval time.Duration
	// IdleInterval is the slower keep-cache-warm cadence used while the
	// channel has no subscribers. Zero keeps the normal interval.
	IdleInterval time.Duration
}

// Scheduler runs one goroutine per channel, fetching through the cache and
// broadcasting results. Each channel is the single writer for its category's
// cache slot.
type Scheduler struct {
	cache    *FeedCache
	hub      Broadcaster
	firehose *Firehose // optional, nil disables mirroring
	metrics  drepo.Metrics
	logger   *xlogger.Logger
	channels []ChannelConfig

	mu     sync.Mutex
	states map[string]*channelState

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type channelState struct {
	mu         sync.Mutex
	lastFetch  time.Time
	lastSource string
	lastStale  bool
}

// NewScheduler creates a scheduler for the given channels.
func NewScheduler(
	cache *FeedCache,
	hub Broadcaster,
	firehose *Firehose,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
	channels []ChannelConfig,
) *Scheduler {
	s := &Scheduler{
		cache:    cache,
		hub:      hub,
		firehose: firehose,
		metrics:  metrics,
		logger:   logger,
		channels: channels,
		states:   make(map[string]*channelState),
		stop:     make(chan struct{}),
	}
	for _, ch := range channels {
		s.states[ch.Name] = &channelState{}
	}
	return s
}

// Start launches the per-channel tick loops. Each channel fetches once
// immediately so subscribers connected at startup are not left waiting a
// full interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, ch := range s.channels {
		s.wg.Add(1)
		go s.run(ctx, ch)
	}
	s.logger.Info("scheduler started", xlogger.Int("channels", len(s.channels)))
}

// Stop halts scheduling of new ticks and waits for in-flight ones to finish.
// The fetch context is deliberately not cancelled here: a tick that already
// dispatched gets to complete (or hit its own attempt timeout) so its result
// still lands in the cache.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, ch ChannelConfig) {
	defer s.wg.Done()

	s.tick(ctx, ch)

	interval := s.intervalFor(ch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx, ch)
			if next := s.intervalFor(ch); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// intervalFor applies the keep-warm policy: no subscribers means the slower
// idle cadence, so the cache stays warm without burning provider quota.
func (s *Scheduler) intervalFor(ch ChannelConfig) time.Duration {
	if ch.IdleInterval > 0 && s.hub.SubscriberCount(ch.Name) == 0 {
		return ch.IdleInterval
	}
	return ch.Interval
}

func (s *Scheduler) tick(ctx context.Context, ch ChannelConfig) {
	entry, stale, err := s.cache.GetOrFetch(ctx, ch.Category)
	if err != nil {
		// Hard failure: no data at all. Subscribers get a structured error so
		// they can tell exhaustion from a quiet channel.
		code := "cache_miss_no_fallback"
		var all *AllProvidersFailedError
		if errors.As(err, &all) {
			code = "all_providers_failed"
		}
		s.logger.Error("channel tick exhausted",
			xlogger.String("channel", ch.Name), xlogger.Error(err))
		s.hub.PublishError(ch.Name, code, err.Error())
		return
	}

	update := models.FeedUpdate{
		Channel:          ch.Name,
		Payload:          entry.Payload,
		Stale:            stale,
		SourceProviderID: entry.SourceProviderID,
		FetchedAt:        entry.FetchedAt,
	}
	s.hub.Publish(ch.Name, update)
	if s.firehose != nil {
		s.firehose.Mirror(ctx, update)
	}

	st := s.states[ch.Name]
	st.mu.Lock()
	st.lastFetch = entry.FetchedAt
	st.lastSource = entry.SourceProviderID
	st.lastStale = stale
	st.mu.Unlock()

	s.metrics.RecordChannelFetch(ch.Name, entry.FetchedAt, stale)
}

// Snapshot returns the per-channel operational view.
func (s *Scheduler) Snapshot() []models.ChannelSnapshot {
	out := make([]models.ChannelSnapshot, 0, len(s.channels))
	for _, ch := range s.channels {
		st := s.states[ch.Name]
		st.mu.Lock()
		snap := models.ChannelSnapshot{
			Channel:     ch.Name,
			Category:    ch.Category,
			Subscribers: s.hub.SubscriberCount(ch.Name),
			LastFetch:   st.lastFetch,
			LastSource:  st.lastSource,
			LastStale:   st.lastStale,
		}
		st.mu.Unlock()
		out = append(out, snap)
	}
	return out
}
