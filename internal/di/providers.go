package di

import (
	"fmt"
	"strings"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	"FeedGate/internal/fetcher"
	"FeedGate/internal/handler/api"
	"FeedGate/internal/handler/ws"
	"FeedGate/internal/hub"
	"FeedGate/internal/registry"
	"FeedGate/internal/service/breaker"
	"FeedGate/internal/service/health"
	"FeedGate/internal/service/ratelimit"
	"FeedGate/internal/usecase"
	pkgcache "FeedGate/pkg/cache"
	"FeedGate/pkg/config"
	pkgkafka "FeedGate/pkg/kafka"
	applogger "FeedGate/pkg/logger"
	"FeedGate/pkg/metrics"
	"FeedGate/pkg/server"
)

// ProvideLogger creates the application logger with the diagnostics
// collector attached.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		Output:         cfg.Logging.Output,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxBackups: cfg.Logging.FileMaxBackups,
		FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{})
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideRegistry builds the provider registry from config.
func ProvideRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()
	for _, pc := range cfg.Providers {
		p := models.Provider{
			ID:       pc.ID,
			Category: models.Category(pc.Category),
			Tier:     pc.Tier,
			RateLimit: models.RateLimit{
				PerMinute: pc.Rate.PerMinute,
				PerHour:   pc.Rate.PerHour,
			},
			Descriptor: models.FetchDescriptor{
				Kind:          "http_json",
				URL:           pc.URL,
				Method:        strings.ToUpper(orString(pc.Method, "GET")),
				Headers:       pc.Headers,
				Query:         pc.Query,
				APIKeyHeader:  pc.APIKeyHeader,
				APIKeyParam:   pc.APIKeyParam,
				APIKey:        pc.APIKey,
				RequiredField: pc.RequiredField,
			},
		}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("register provider %s: %w", pc.ID, err)
		}
		if pc.Disabled {
			if err := reg.Disable(pc.ID); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ProvideTracker creates the health tracker preloaded with provider tiers.
func ProvideTracker(cfg *config.Config) *health.Tracker {
	t := health.NewTracker(
		health.WithWindow(cfg.Health.WindowSize, cfg.Health.WindowAge),
	)
	for _, pc := range cfg.Providers {
		t.SetTier(pc.ID, pc.Tier)
	}
	return t
}

// ProvideBudget creates the rate budget with every provider registered.
func ProvideBudget(cfg *config.Config) *ratelimit.Budget {
	b := ratelimit.New()
	for _, pc := range cfg.Providers {
		b.Register(pc.ID, models.RateLimit{
			PerMinute: pc.Rate.PerMinute,
			PerHour:   pc.Rate.PerHour,
		})
	}
	return b
}

// ProvideBreaker creates the circuit breaker.
func ProvideBreaker(cfg *config.Config) *breaker.Breaker {
	bcfg := breaker.DefaultConfig()
	if cfg.Breaker.FailureThreshold > 0 {
		bcfg.FailureThreshold = cfg.Breaker.FailureThreshold
	}
	if cfg.Breaker.BaseCooldown > 0 {
		bcfg.BaseDelay = cfg.Breaker.BaseCooldown
	}
	if cfg.Breaker.MaxCooldown > 0 {
		bcfg.MaxDelay = cfg.Breaker.MaxCooldown
	}
	return breaker.New(bcfg)
}

// ProvideFetcher creates the HTTP fetcher.
func ProvideFetcher(cfg *config.Config) drepo.Fetcher {
	return fetcher.New(cfg.Router.AttemptTimeout)
}

// ProvideRouter creates the fallback router.
func ProvideRouter(
	cfg *config.Config,
	reg *registry.Registry,
	tracker *health.Tracker,
	budget *ratelimit.Budget,
	brk *breaker.Breaker,
	f drepo.Fetcher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.FallbackRouter {
	return usecase.NewFallbackRouter(reg, tracker, budget, brk, f, m, l, usecase.RouterConfig{
		MaxAttempts:    cfg.Router.MaxAttempts,
		AttemptTimeout: cfg.Router.AttemptTimeout,
		ExecuteTimeout: cfg.Router.OverallTimeout,
	})
}

// ProvideKV creates the cache KV store: Redis when enabled, in-process
// memory otherwise.
func ProvideKV(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	kv, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(orString(cfg.Redis.Prefix, "feedgate")),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return kv, nil
}

// ProvideFeedCache creates the TTL cache in front of the router.
func ProvideFeedCache(
	cfg *config.Config,
	router *usecase.FallbackRouter,
	kv pkgcache.Service,
	l *applogger.Logger,
) *usecase.FeedCache {
	opts := []usecase.CacheOption{usecase.WithKV(kv)}
	if cfg.Cache.DefaultTTL > 0 {
		opts = append(opts, usecase.WithDefaultTTL(cfg.Cache.DefaultTTL))
	}
	for _, ch := range cfg.Channels {
		if ch.TTL > 0 {
			opts = append(opts, usecase.WithCategoryTTL(models.Category(ch.Category), ch.TTL))
		}
	}
	return usecase.NewFeedCache(router, l, opts...)
}

// ProvideHub creates the subscription hub accepting the configured channels.
func ProvideHub(cfg *config.Config, l *applogger.Logger, m drepo.Metrics) *hub.Hub {
	names := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		names = append(names, ch.Name)
	}
	return hub.New(hub.Config{
		QueueSize:     cfg.Hub.QueueSize,
		DropThreshold: cfg.Hub.DropThreshold,
	}, l, m, names)
}

// ProvideFirehose creates the optional Kafka update mirror. Returns nil when
// disabled; the scheduler treats a nil firehose as a no-op.
func ProvideFirehose(cfg *config.Config, l *applogger.Logger) (*usecase.Firehose, error) {
	if !cfg.Firehose.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Firehose.Brokers),
		pkgkafka.WithCompression(cfg.Firehose.Compression),
		pkgkafka.WithRequiredAcks(cfg.Firehose.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Firehose.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Firehose.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Firehose.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Firehose.MaxAttempts),
		pkgkafka.WithAsync(cfg.Firehose.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return usecase.NewFirehose(producer, cfg.Firehose.Topic, l), nil
}

// ProvideScheduler creates the per-channel tick scheduler.
func ProvideScheduler(
	cfg *config.Config,
	cache *usecase.FeedCache,
	h *hub.Hub,
	firehose *usecase.Firehose,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.Scheduler {
	channels := make([]usecase.ChannelConfig, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, usecase.ChannelConfig{
			Name:         ch.Name,
			Category:     models.Category(ch.Category),
			Interval:     ch.Interval,
			IdleInterval: ch.IdleInterval,
		})
	}
	return usecase.NewScheduler(cache, h, firehose, m, l, channels)
}

// ProvideWSHandler creates the WebSocket upgrade handler.
func ProvideWSHandler(cfg *config.Config, h *hub.Hub, l *applogger.Logger) *ws.Handler {
	return ws.NewHandler(h, l, cfg.Hub.PingInterval)
}

// ProvideAPIHandler creates the operational API handler.
func ProvideAPIHandler(
	l *applogger.Logger,
	reg *registry.Registry,
	tracker *health.Tracker,
	brk *breaker.Breaker,
	budget *ratelimit.Budget,
	cache *usecase.FeedCache,
	scheduler *usecase.Scheduler,
) *api.GatewayHandler {
	return api.NewGatewayHandler(l, reg, tracker, brk, budget, cache, scheduler)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *hub.Hub,
	scheduler *usecase.Scheduler,
	firehose *usecase.Firehose,
	kv pkgcache.Service,
	wsHandler *ws.Handler,
	apiHandler *api.GatewayHandler,
) *server.App {
	return server.New(cfg, l, h, scheduler, firehose, kv, wsHandler, apiHandler)
}
