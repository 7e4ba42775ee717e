package hub

import (
	"time"

	"github.com/gorilla/websocket"

	xlogger "FeedGate/pkg/logger"
)

const (
	maxMessageSize = 4096
	writeTimeout   = 10 * time.Second
)

// Conn binds one WebSocket connection to a hub subscriber: the read loop
// feeds inbound commands to the hub, the write loop drains the subscriber's
// bounded queue.
type Conn struct {
	ws           *websocket.Conn
	hub          *Hub
	sub          *Subscriber
	logger       *xlogger.Logger
	pingInterval time.Duration
}

// NewConn registers the connection with the hub.
func NewConn(ws *websocket.Conn, h *Hub, id string, pingInterval time.Duration, logger *xlogger.Logger) *Conn {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Conn{
		ws:           ws,
		hub:          h,
		sub:          h.Connect(id),
		logger:       logger,
		pingInterval: pingInterval,
	}
}

// Run serves the connection until the peer goes away or the hub disconnects
// it. It blocks; the HTTP handler calls it on the upgraded connection.
func (c *Conn) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Conn) readLoop() {
	defer c.hub.Disconnect(c.sub.ID)

	c.ws.SetReadLimit(maxMessageSize)
	deadline := 2 * c.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read failed",
					xlogger.String("conn", c.sub.ID), xlogger.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
		c.hub.HandleCommand(c.sub.ID, raw)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case env := <-c.sub.Queue():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				c.hub.Disconnect(c.sub.ID)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Disconnect(c.sub.ID)
				return
			}
		case <-c.sub.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
