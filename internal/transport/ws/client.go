package ws

import (
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/gorilla/websocket"
)

// client is one socket connection. The hub owns send and is the only one that closes it.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	cfg    config.WebSocketConfig
	logger *slog.Logger
}

func newClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		cfg:    cfg,
		logger: logger.With("client", id),
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
// It returns when the hub closes send or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump hands every inbound frame to handle until the peer goes away.
func (c *client) readPump(handle func(msg []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Connection closed unexpectedly", "error", err)
			}
			return
		}
		handle(msg)
	}
}
