package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// wsConn is the slice of the websocket connection the client needs.
// Narrowed so hub tests can run against an in-memory fake.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one authenticated websocket session. Outbound delivery goes
// through a buffered channel drained by WritePump; a full buffer marks the
// client as slow and the hub drops it rather than blocking other deliveries.
type Client struct {
	ID     string
	UserID string

	conn wsConn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient constructs a client for the given user session.
func NewClient(userID string, conn wsConn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// enqueue offers a payload without blocking. False means the buffer is full
// or the client is closed.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Send marshals and enqueues an event for this session alone, used for
// direct replies such as protocol errors. False means the event was not
// queued.
func (c *Client) Send(event ChannelEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	return c.enqueue(payload)
}

// Close terminates the session and stops the write pump. Safe to call more
// than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WritePump drains the send buffer onto the wire and keeps the connection
// alive with pings. Runs until the client is closed or a write fails.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
