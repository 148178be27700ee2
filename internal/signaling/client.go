package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telehealth-platform/internal/auth"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
)

// Client is one authenticated socket. Rooms are owned by the Hub and only
// touched under its lock.
type Client struct {
	ID       string
	Identity auth.Identity

	log   *slog.Logger
	conn  *websocket.Conn
	rooms map[string]struct{}

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, identity auth.Identity, conn *websocket.Conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		ID:       id,
		Identity: identity,
		log:      log.With("conn_id", id, "user_id", identity.UserID, "role", identity.Role),
		conn:     conn,
		rooms:    make(map[string]struct{}),
		send:     make(chan []byte, sendQueueSize),
	}
}

// enqueue queues a frame without blocking. It reports false if the queue is
// full or the client is gone.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
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

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// emit sends an event to this client only.
func (c *Client) emit(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		c.log.Error("signaling: encode event failed", "event", event, "err", err)
		return
	}
	if !c.enqueue(frame) {
		c.log.Warn("signaling: dropped event", "event", event)
	}
}

func (c *Client) ack(id string, data any, err error) {
	if id == "" {
		return
	}
	frame, encErr := encodeAck(id, data, err)
	if encErr != nil {
		c.log.Error("signaling: encode ack failed", "ack", id, "err", encErr)
		frame, _ = encodeAck(id, nil, encErr)
	}
	if !c.enqueue(frame) {
		c.log.Warn("signaling: dropped ack", "ack", id)
	}
}

// readPump reads frames until the socket fails and hands each to handle in
// order. Messages from one socket are never processed concurrently.
func (c *Client) readPump(ctx context.Context, readLimit int64, pongWait time.Duration, handle func(context.Context, []byte)) {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Info("signaling: socket read failed", "err", err)
			}
			return
		}
		handle(ctx, message)
	}
}

// writePump is the only writer on the socket. It exits once the send queue
// is closed or a write fails.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("signaling: socket write failed", "err", err)
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
