package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FeedGate/internal/domain/models"
	"FeedGate/internal/registry"
	"FeedGate/internal/service/breaker"
	"FeedGate/internal/service/health"
	"FeedGate/internal/service/ratelimit"
	"FeedGate/internal/usecase"
	xhttp "FeedGate/pkg/http"
	xlogger "FeedGate/pkg/logger"
	xutil "FeedGate/pkg/util"
)

// GatewayHandler serves the operational API: provider status, channel
// diagnostics, and runtime enable/disable.
type GatewayHandler struct {
	logger    *xlogger.Logger
	registry  *registry.Registry
	tracker   *health.Tracker
	breaker   *breaker.Breaker
	budget    *ratelimit.Budget
	cache     *usecase.FeedCache
	scheduler *usecase.Scheduler
}

func NewGatewayHandler(
	logger *xlogger.Logger,
	reg *registry.Registry,
	tracker *health.Tracker,
	brk *breaker.Breaker,
	budget *ratelimit.Budget,
	cache *usecase.FeedCache,
	scheduler *usecase.Scheduler,
) *GatewayHandler {
	return &GatewayHandler{
		logger:    logger,
		registry:  reg,
		tracker:   tracker,
		breaker:   brk,
		budget:    budget,
		cache:     cache,
		scheduler: scheduler,
	}
}

func (h *GatewayHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/providers", h.Providers)
	g.GET("/providers/:id", h.Provider)
	g.POST("/providers/:id/enable", h.EnableProvider)
	g.POST("/providers/:id/disable", h.DisableProvider)
	g.GET("/channels", h.Channels)
	g.GET("/channels/:name", h.Channel)
	g.GET("/diagnostics", h.Diagnostics)
	e.GET("/healthz", h.Healthz)
}

// Providers returns the health snapshot of every registered provider.
func (h *GatewayHandler) Providers(c echo.Context) error {
	all := h.registry.All()
	out := make([]models.ProviderSnapshot, 0, len(all))
	for _, entry := range all {
		out = append(out, h.snapshotFor(entry.Provider, entry.Enabled))
	}
	return xhttp.SuccessResponse(c, out)
}

// Provider returns the health snapshot of a single provider.
func (h *GatewayHandler) Provider(c echo.Context) error {
	id := c.Param("id")
	p, ok := h.registry.Get(id)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown provider %q", id))
	}
	return xhttp.SuccessResponse(c, h.snapshotFor(p, h.registry.Enabled(id)))
}

func (h *GatewayHandler) snapshotFor(p models.Provider, enabled bool) models.ProviderSnapshot {
	successRate, avgLatency, samples, last := h.tracker.Snapshot(p.ID)
	return models.ProviderSnapshot{
		ID:           p.ID,
		Category:     p.Category,
		Tier:         p.Tier,
		Enabled:      enabled,
		Status:       string(h.tracker.Status(p.ID)),
		Score:        h.tracker.Score(p.ID),
		CircuitState: string(h.breaker.State(p.ID)),
		SuccessRate:  successRate,
		AvgLatencyMs: avgLatency,
		Samples:      samples,
		LastSample:   last,
	}
}

// EnableProvider re-admits a provider to candidate selection.
func (h *GatewayHandler) EnableProvider(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Enable(id); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown provider %q", id).WithError(err))
	}
	h.logger.Info("provider enabled", xlogger.String("provider", id))
	return xhttp.SuccessResponse(c, map[string]string{"id": id, "state": "enabled"})
}

// DisableProvider removes a provider from candidate selection without
// touching its health history.
func (h *GatewayHandler) DisableProvider(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Disable(id); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown provider %q", id).WithError(err))
	}
	h.logger.Info("provider disabled", xlogger.String("provider", id))
	return xhttp.SuccessResponse(c, map[string]string{"id": id, "state": "disabled"})
}

// Channels returns the per-channel operational view.
func (h *GatewayHandler) Channels(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.scheduler.Snapshot())
}

type channelDetail struct {
	models.ChannelSnapshot
	Cache *cachedEntryView `json:"cache,omitempty"`
}

type cachedEntryView struct {
	SourceProviderID string    `json:"source_provider_id"`
	FetchedAt        time.Time `json:"fetched_at"`
	AgeMs            int64     `json:"age_ms"`
	TTLMs            int64     `json:"ttl_ms"`
}

// Channel returns one channel's operational view plus the freshness of its
// cache slot, without triggering a fetch.
func (h *GatewayHandler) Channel(c echo.Context) error {
	name := c.Param("name")
	for _, snap := range h.scheduler.Snapshot() {
		if snap.Channel != name {
			continue
		}
		detail := channelDetail{ChannelSnapshot: snap}
		if entry, ok := h.cache.Peek(snap.Category); ok {
			detail.Cache = &cachedEntryView{
				SourceProviderID: entry.SourceProviderID,
				FetchedAt:        entry.FetchedAt,
				AgeMs:            time.Since(entry.FetchedAt).Milliseconds(),
				TTLMs:            entry.TTL.Milliseconds(),
			}
		}
		return xhttp.SuccessResponse(c, detail)
	}
	return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown channel %q", name))
}

type diagnosticsRequest struct {
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Since string `query:"since"`
}

type diagnosticsResponse struct {
	Providers []providerBudgetView         `json:"rate_budgets"`
	RecentLog []xlogger.AggregatedLogEntry `json:"recent_log,omitempty"`
}

type providerBudgetView struct {
	ID    string `json:"id"`
	Used  int    `json:"used"`
	Quota int    `json:"quota"`
}

// Diagnostics reports rate budget consumption and recent warn/error log
// entries. ?limit caps the log section, ?since filters by last occurrence.
func (h *GatewayHandler) Diagnostics(c echo.Context) error {
	req := new(diagnosticsRequest)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := xutil.ParseTimeDefault(req.Since, time.Time{})

	all := h.registry.All()
	budgets := make([]providerBudgetView, 0, len(all))
	for _, entry := range all {
		used, quota := h.budget.Remaining(entry.Provider.ID)
		budgets = append(budgets, providerBudgetView{ID: entry.Provider.ID, Used: used, Quota: quota})
	}

	resp := diagnosticsResponse{Providers: budgets}
	if collector := h.logger.Collector(); collector != nil {
		recent := collector.Recent()
		for _, entry := range recent {
			if !since.IsZero() && entry.LastSeen.Before(since) {
				continue
			}
			resp.RecentLog = append(resp.RecentLog, entry)
			if len(resp.RecentLog) >= req.Limit {
				break
			}
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

// Healthz reports process liveness.
func (h *GatewayHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
