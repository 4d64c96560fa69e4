package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 45 * time.Second
	maxMessageSize = 65536
	sendBufferSize = 64
)

// wsClient is one live socket. Its send channel is the connection's
// outbound buffer: the router enqueues without blocking and frames are
// dropped when the buffer is full rather than stalling delivery to other
// members.
type wsClient struct {
	srv    *Server
	conn   *websocket.Conn
	send   chan []byte
	connID string

	// mu guards closed so a routed frame can never hit a closed send
	// channel during teardown.
	mu     sync.RWMutex
	closed bool
}

func newWSClient(srv *Server, conn *websocket.Conn, connID string) *wsClient {
	return &wsClient{
		srv:    srv,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: connID,
	}
}

// Enqueue hands a frame to the outbound buffer without blocking.
func (c *wsClient) Enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and shuts the send channel, exactly once.
func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendFrame marshals and enqueues a server-originated frame.
func (c *wsClient) sendFrame(frameType string, payload interface{}) {
	raw, err := json.Marshal(map[string]interface{}{"type": frameType, "payload": payload})
	if err != nil {
		c.srv.log.Error("frame marshal failed", zap.String("type", frameType), zap.Error(err))
		return
	}
	if !c.Enqueue(raw) {
		c.srv.log.Warn("outbound buffer full, frame dropped",
			zap.String("conn_id", c.connID),
			zap.String("type", frameType),
		)
	}
}

// sendError emits the error lifecycle frame with a machine-readable reason.
func (c *wsClient) sendError(reason, message string) {
	c.sendFrame("error", map[string]interface{}{"reason": reason, "message": message})
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. One writePump per connection; it is the only
// goroutine that writes to the socket.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.srv.log.Warn("socket write failed", zap.String("conn_id", c.connID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client commands until the transport reports
// disconnection, then unbinds the connection. Unbinding here is the single
// teardown path: it strips every channel membership the instant the socket
// dies.
func (c *wsClient) readPump() {
	defer func() {
		c.srv.registry.Unbind(c.connID)
		c.srv.metrics.ConnectionClosed()
		c.srv.stats.disconnects.Inc()
		c.closeSend()
		c.conn.Close()
		c.srv.log.Info("client disconnected", zap.String("conn_id", c.connID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.srv.log.Warn("socket read failed", zap.String("conn_id", c.connID), zap.Error(err))
			}
			return
		}
		c.srv.handleCommand(c, raw)
	}
}
