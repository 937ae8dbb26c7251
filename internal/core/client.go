package core

import (
	"sync"

	"github.com/deltadefenders/farmchat-server/internal/auth"
)

// DefaultEventBuffer is the per-client outbound event queue length.
const DefaultEventBuffer = 64

// Client is one authenticated connection as seen by the core layer.
// Identity is fixed at handshake time and never changes.
type Client struct {
	ID       string
	Identity auth.Identity
	Events   chan *Event

	rooms     map[string]struct{} // guarded by Hub.mu
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, identity auth.Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed when the hub shuts down and the connection should end.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// deliver queues an event without blocking. Returns false if the queue was full.
func (c *Client) deliver(event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}
