// Package ws owns the duplex connection layer: the connection registry,
// the group broadcast router, and the handshake/dispatch handler.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"venue-system/internal/domain"
)

const sendBuffer = 64

// transport is the subset of *websocket.Conn the client needs; tests
// substitute their own.
type transport interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client is one live connection. Outbound events pass through a buffered
// channel so a slow reader never blocks a broadcast.
type Client struct {
	ID       string
	Identity domain.Identity

	conn transport
	send chan domain.Event

	mu     sync.Mutex
	closed bool
}

func NewClient(identity domain.Identity, conn transport) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
		send:     make(chan domain.Event, sendBuffer),
	}
}

// Send queues an event for delivery. It reports false when the client is
// closed or its buffer is full; callers treat both as a skip, never an
// error.
func (c *Client) Send(ev domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WritePump drains the send channel onto the transport. It returns when
// the client is closed or a write fails.
func (c *Client) WritePump(ctx context.Context) {
	for ev := range c.send {
		buf, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := c.conn.Write(ctx, websocket.MessageText, buf); err != nil {
			return
		}
	}
}
