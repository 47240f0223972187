package realtime

import (
	"sync"

	"axionx/cmd/internal/auth/gate"
	v1 "axionx/shared/contracts/chat/v1"
)

// Client is one connected chat surface.
//
// Send is never closed by the server so concurrent enqueuers cannot panic; done
// signals shutdown instead. Close is idempotent.
type Client struct {
	ID   string
	Gate *gate.Gate
	Send chan v1.Envelope

	// kick is a one-slot "re-list conversations" signal. Bursts coalesce.
	kick chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, g *gate.Gate, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ID:   id,
		Gate: g,
		Send: make(chan v1.Envelope, sendQueueSize),
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Kicks delivers coalesced conversation-list refresh requests.
func (c *Client) Kicks() <-chan struct{} { return c.kick }

// Kick asks the client to re-fetch its conversation list. It never blocks.
func (c *Client) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
