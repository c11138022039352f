package hub

import (
	"encoding/json"
	"sync"

	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Client is the write side of one live connection. The transport drains Send() and
// calls Hub.Deregister when the connection ends.
type Client struct {
	ID     string
	UserID string
	Role   models.Role

	send    chan []byte
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

// NewClient constructs a client. rps = inbound requests per second allowed.
func NewClient(userID string, role models.Role, buffer, rps int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		Role:    role,
		send:    make(chan []byte, buffer),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Send() <-chan []byte { return c.send }

// Allow applies the per-connection inbound rate limit.
func (c *Client) Allow() bool { return c.limiter.Allow() }

// Deliver marshals env and queues it without blocking. It reports false when the
// client is closed or its buffer is full.
func (c *Client) Deliver(env Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return c.enqueue(b)
}

func (c *Client) enqueue(b []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close closes the send channel once; the writer goroutine then sends a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
