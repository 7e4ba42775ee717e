package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FeedGate/internal/hub"
	xlogger "FeedGate/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients of the public feed connect from any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP connections and hands them to the hub.
type Handler struct {
	hub          *hub.Hub
	logger       *xlogger.Logger
	pingInterval time.Duration
}

func NewHandler(h *hub.Hub, logger *xlogger.Logger, pingInterval time.Duration) *Handler {
	return &Handler{hub: h, logger: logger, pingInterval: pingInterval}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Handler) Serve(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	id := uuid.NewString()
	conn := hub.NewConn(ws, h.hub, id, h.pingInterval, h.logger)
	conn.Run()
	return nil
}
