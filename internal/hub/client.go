package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/common/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one agent's WebSocket connection. Writes go through a bounded
// queue; when it fills, the oldest unsent frame is dropped so the connection
// survives slow readers.
type Client struct {
	tenantID string
	agentID  string
	conn     *websocket.Conn
	send     chan []byte
	hub      *WSHub
	logger   *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(tenantID, agentID string, conn *websocket.Conn, hub *WSHub, queueSize int, log *logger.Logger) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		tenantID: tenantID,
		agentID:  agentID,
		conn:     conn,
		send:     make(chan []byte, queueSize),
		hub:      hub,
		done:     make(chan struct{}),
		logger: log.WithFields(
			zap.String("tenant_id", tenantID),
			zap.String("agent_id", agentID)),
	}
}

// enqueue queues a frame for delivery, dropping the oldest queued frame when
// the buffer is full. Reports whether a frame was dropped.
func (c *Client) enqueue(payload []byte) (dropped bool) {
	for {
		select {
		case <-c.done:
			return true
		case c.send <- payload:
			return dropped
		default:
		}
		select {
		case <-c.send:
			dropped = true
		default:
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump drains the socket until the peer goes away. Inbound frames after
// the hello are ignored; the WebSocket is a push channel only.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// writePump flushes the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
