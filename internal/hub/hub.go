package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	xlogger "FeedGate/pkg/logger"
)

// Config holds hub tunables.
type Config struct {
	QueueSize     int // per-subscriber send queue bound
	DropThreshold int // consecutive drops before forced disconnect
}

// DefaultConfig returns the stock hub tunables.
func DefaultConfig() Config {
	return Config{QueueSize: 64, DropThreshold: 10}
}

// Subscriber is one connected client. The hub owns it exclusively: the hub
// enqueues, the transport's write loop drains, nobody else touches it.
type Subscriber struct {
	ID          string
	queue       chan models.Envelope
	done        chan struct{}
	connectedAt time.Time

	mu           sync.Mutex
	channels     map[string]struct{}
	lastActivity time.Time
	drops        int // consecutive drops, reset on a successful enqueue
	closed       bool
}

// Queue exposes the send queue for the transport write loop.
func (s *Subscriber) Queue() <-chan models.Envelope { return s.queue }

// Done is closed when the hub disconnects the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Hub tracks subscriber connections and channel interests and fans published
// updates out to bounded per-subscriber queues.
type Hub struct {
	cfg      Config
	logger   *xlogger.Logger
	metrics  drepo.Metrics
	validate *validator.Validate

	mu       sync.RWMutex
	subs     map[string]*Subscriber
	channels map[string]map[string]*Subscriber // channel -> subscriber id
	known    map[string]struct{}               // configured channel names
}

// New creates a hub accepting the given channel names.
func New(cfg Config, logger *xlogger.Logger, metrics drepo.Metrics, channelNames []string) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.DropThreshold <= 0 {
		cfg.DropThreshold = DefaultConfig().DropThreshold
	}
	known := make(map[string]struct{}, len(channelNames))
	for _, n := range channelNames {
		known[n] = struct{}{}
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		validate: validator.New(),
		subs:     make(map[string]*Subscriber),
		channels: make(map[string]map[string]*Subscriber),
		known:    known,
	}
}

// Connect registers a new subscriber and returns it.
func (h *Hub) Connect(id string) *Subscriber {
	now := time.Now()
	sub := &Subscriber{
		ID:           id,
		queue:        make(chan models.Envelope, h.cfg.QueueSize),
		done:         make(chan struct{}),
		connectedAt:  now,
		channels:     make(map[string]struct{}),
		lastActivity: now,
	}
	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	h.logger.Info("subscriber connected", xlogger.String("conn", id))
	return sub
}

// Subscribe adds a channel interest. Idempotent; unknown channels error.
func (h *Hub) Subscribe(id, channel string) error {
	if _, ok := h.known[channel]; !ok {
		return fmt.Errorf("hub: unknown channel %q", channel)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return fmt.Errorf("hub: unknown connection %q", id)
	}

	sub.mu.Lock()
	sub.channels[channel] = struct{}{}
	sub.mu.Unlock()

	set, ok := h.channels[channel]
	if !ok {
		set = make(map[string]*Subscriber)
		h.channels[channel] = set
	}
	set[id] = sub
	h.metrics.RecordSubscribers(channel, len(set))
	return nil
}

// Unsubscribe removes a channel interest. Idempotent.
func (h *Hub) Unsubscribe(id, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.mu.Lock()
		delete(sub.channels, channel)
		sub.mu.Unlock()
	}
	if set, ok := h.channels[channel]; ok {
		delete(set, id)
		h.metrics.RecordSubscribers(channel, len(set))
	}
}

// Disconnect removes the subscriber from every channel and signals its
// transport to close. Idempotent.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		for channel, set := range h.channels {
			if _, member := set[id]; member {
				delete(set, id)
				h.metrics.RecordSubscribers(channel, len(set))
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	alreadyClosed := sub.closed
	sub.closed = true
	sub.mu.Unlock()
	if !alreadyClosed {
		close(sub.done)
		h.logger.Info("subscriber disconnected", xlogger.String("conn", id))
	}
}

// Publish fans an update out to every subscriber of the channel. A full
// queue drops that subscriber's oldest message; the publish path never
// blocks on a slow consumer.
func (h *Hub) Publish(channel string, update models.FeedUpdate) {
	env := models.NewEnvelope(channel, models.TypeUpdate, models.UpdateData{
		Payload:          update.Payload,
		Stale:            update.Stale,
		SourceProviderID: update.SourceProviderID,
	})
	h.broadcast(channel, env)
}

// PublishError broadcasts a structured error event to the channel.
func (h *Hub) PublishError(channel, code, message string) {
	env := models.NewEnvelope(channel, models.TypeError, models.ErrorData{Code: code, Message: message})
	h.broadcast(channel, env)
}

func (h *Hub) broadcast(channel string, env models.Envelope) {
	h.mu.RLock()
	set := h.channels[channel]
	targets := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var evict []string
	for _, sub := range targets {
		if h.enqueue(sub, channel, env) {
			continue
		}
		evict = append(evict, sub.ID)
	}
	for _, id := range evict {
		h.logger.Warn("subscriber evicted: queue persistently full",
			xlogger.String("conn", id), xlogger.String("channel", channel))
		h.Disconnect(id)
	}
}

// enqueue delivers one envelope, dropping the subscriber's oldest queued
// message when full. Returns false once consecutive drops pass the
// disconnect threshold.
func (h *Hub) enqueue(sub *Subscriber, channel string, env models.Envelope) bool {
	select {
	case sub.queue <- env:
		sub.mu.Lock()
		sub.drops = 0
		sub.mu.Unlock()
		return true
	default:
	}

	// Full: make room by discarding the oldest entry, then retry once.
	select {
	case <-sub.queue:
	default:
	}
	h.metrics.RecordDroppedMessage(channel)

	sub.mu.Lock()
	sub.drops++
	over := sub.drops >= h.cfg.DropThreshold
	sub.mu.Unlock()

	select {
	case sub.queue <- env:
	default:
		// Writer raced us refilling the queue; count it as dropped outright.
	}
	return !over
}

// SubscriberCount returns the number of subscribers on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Status returns connection diagnostics for a subscriber.
func (h *Hub) Status(id string) (models.StatusData, error) {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return models.StatusData{}, fmt.Errorf("hub: unknown connection %q", id)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	channels := make([]string, 0, len(sub.channels))
	for c := range sub.channels {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return models.StatusData{
		SubscribedChannels: channels,
		ConnectedAt:        sub.connectedAt,
		LastActivity:       sub.lastActivity,
	}, nil
}

// HandleCommand processes one raw inbound message and enqueues the reply.
// Malformed or unknown commands yield a structured error reply, never a
// dropped connection.
func (h *Hub) HandleCommand(id string, raw []byte) {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	sub.touch(time.Now())

	var cmd models.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.reply(sub, models.NewEnvelope("", models.TypeError,
			models.ErrorData{Code: "bad_request", Message: "malformed command"}))
		return
	}
	if err := h.validate.Struct(&cmd); err != nil {
		code, msg := "bad_request", err.Error()
		switch cmd.Action {
		case models.ActionSubscribe, models.ActionUnsubscribe, models.ActionPing, models.ActionGetStatus:
		default:
			code, msg = "unknown_command", fmt.Sprintf("unsupported action %q", cmd.Action)
		}
		h.reply(sub, models.NewEnvelope(cmd.Channel, models.TypeError,
			models.ErrorData{Code: code, Message: msg}))
		return
	}

	switch cmd.Action {
	case models.ActionSubscribe:
		if err := h.Subscribe(id, cmd.Channel); err != nil {
			h.reply(sub, models.NewEnvelope(cmd.Channel, models.TypeError,
				models.ErrorData{Code: "unknown_channel", Message: err.Error()}))
			return
		}
		h.reply(sub, models.NewEnvelope(cmd.Channel, models.TypeSubscribed, nil))
	case models.ActionUnsubscribe:
		h.Unsubscribe(id, cmd.Channel)
		h.reply(sub, models.NewEnvelope(cmd.Channel, models.TypeUnsubscribed, nil))
	case models.ActionPing:
		h.reply(sub, models.NewEnvelope("", models.TypePong, nil))
	case models.ActionGetStatus:
		status, err := h.Status(id)
		if err != nil {
			return
		}
		h.reply(sub, models.NewEnvelope("", models.TypeStatus, status))
	}
}

// reply enqueues a direct response, subject to the same bounded queue.
func (h *Hub) reply(sub *Subscriber, env models.Envelope) {
	if !h.enqueue(sub, env.Channel, env) {
		h.Disconnect(sub.ID)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CloseAll disconnects every subscriber, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Disconnect(id)
	}
}
