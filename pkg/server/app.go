package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"FeedGate/internal/handler/api"
	"FeedGate/internal/handler/ws"
	"FeedGate/internal/hub"
	"FeedGate/internal/usecase"
	pkgcache "FeedGate/pkg/cache"
	"FeedGate/pkg/config"
	xhttp "FeedGate/pkg/http"
	applogger "FeedGate/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	hub        *hub.Hub
	scheduler  *usecase.Scheduler
	firehose   *usecase.Firehose
	kv         pkgcache.Service
	wsHandler  *ws.Handler
	apiHandler *api.GatewayHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	h *hub.Hub,
	scheduler *usecase.Scheduler,
	firehose *usecase.Firehose,
	kv pkgcache.Service,
	wsHandler *ws.Handler,
	apiHandler *api.GatewayHandler,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		hub:        h,
		scheduler:  scheduler,
		firehose:   firehose,
		kv:         kv,
		wsHandler:  wsHandler,
		apiHandler: apiHandler,
	}
}

// routeSet registers multiple handlers on one Echo instance.
type routeSet []xhttp.Handler

func (r routeSet) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRequestMetrics(a.logger, a.cfg.Metrics.SlowThreshold))
	}
	a.httpServer = xhttp.NewServer(routeSet{a.wsHandler, a.apiHandler}, opts...)

	a.scheduler.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("gateway started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Int("channels", len(a.cfg.Channels)),
		applogger.Int("providers", len(a.cfg.Providers)))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops services in dependency order: first the tick loops so no
// new fetches start, then the subscribers, then the HTTP listener, then the
// outbound sinks.
func (a *App) shutdown(ctx context.Context) error {
	a.scheduler.Stop()

	a.hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.firehose.Close(); err != nil {
		a.logger.Warn("firehose close error", applogger.Error(err))
	}

	if closer, ok := a.kv.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
