package live

import (
	"sync"

	"podium/cmd/internal/session"
)

// Client represents one connected websocket session member.
//
// Design notes:
//   - Send is intentionally NOT closed by the server to avoid panics from
//     concurrent broadcasters.
//   - done signals goroutines to stop.
//   - Close is idempotent.
type Client struct {
	ConnID string
	Role   session.Role
	UID    string
	Send   chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID string, role session.Role, uid string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID: connID,
		Role:   role,
		UID:    uid,
		Send:   make(chan Message, sendQueueSize),
		done:   make(chan struct{}),
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

// Close signals the client goroutines to stop (idempotent). It does NOT
// close Send, keeping broadcast safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
