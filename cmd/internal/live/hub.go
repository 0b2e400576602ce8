// Package live is the in-process registry of open websocket connections,
// keyed by session, and the fanout path for state-change notifications.
//
// The registry is explicitly single-process: distributing it across server
// instances would need an external broadcast channel and is out of scope.
package live

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"podium/cmd/internal/session"
)

// Message is the wire shape delivered to connected clients.
type Message struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Page  string `json:"page,omitempty"`
	State string `json:"state,omitempty"`
}

const (
	// TypeStateChange notifies user connections of a host state update.
	TypeStateChange = "state_change"
	// TypeStateChangeAck confirms delivery to host connections; hosts are
	// never broadcast targets for state changes themselves.
	TypeStateChangeAck = "state_change_ack"
)

// Hub owns per-session rooms and provides stable room handles.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room

	connected  prometheus.Gauge
	broadcasts prometheus.Counter
}

// HubOption configures optional hub instrumentation.
type HubOption func(*Hub)

// WithConnectedGauge tracks the number of registered connections.
func WithConnectedGauge(g prometheus.Gauge) HubOption {
	return func(h *Hub) { h.connected = g }
}

// WithBroadcastCounter counts state-change fanouts.
func WithBroadcastCounter(c prometheus.Counter) HubOption {
	return func(h *Hub) { h.broadcasts = c }
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:   log,
		rooms: make(map[string]*Room),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Room returns a stable room handle for sessionUID, creating it on demand.
func (h *Hub) Room(sessionUID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[sessionUID]; ok {
		return r
	}
	r := newRoom(h.log, sessionUID)
	h.rooms[sessionUID] = r
	return r
}

// Register adds a connection to the session's room.
func (h *Hub) Register(sessionUID string, c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}
	h.Room(sessionUID).join(c)
	if h.connected != nil {
		h.connected.Inc()
	}
}

// Deregister removes a connection from the session's room. Idempotent:
// removing an unknown connection or session is a no-op.
func (h *Hub) Deregister(sessionUID, connID string) {
	h.mu.RLock()
	r := h.rooms[sessionUID]
	h.mu.RUnlock()

	if r == nil {
		return
	}
	if r.leave(connID) && h.connected != nil {
		h.connected.Dec()
	}
}

// StateChanged implements session.Broadcaster: user connections receive the
// state-change message, host connections receive a delivery confirmation.
func (h *Hub) StateChanged(sessionUID, token, page, state string) {
	h.Broadcast(sessionUID, Message{Type: TypeStateChange, Token: token, Page: page, State: state})
}

// Broadcast fans msg out to all user-role connections of the session and
// echoes an ack to host connections. Fire-and-forget: a slow or failed
// client is skipped, never blocking the others or the caller.
func (h *Hub) Broadcast(sessionUID string, msg Message) {
	h.mu.RLock()
	r := h.rooms[sessionUID]
	h.mu.RUnlock()

	if r == nil {
		return
	}

	delivered := r.broadcast(msg)
	if h.broadcasts != nil {
		h.broadcasts.Inc()
	}
	h.log.Debug("hub.broadcast", "session_uid", sessionUID, "type", msg.Type, "delivered", delivered)
}

// Room is the per-session membership + fanout primitive.
//
// Concurrency guarantees:
//   - join/leave are safe under concurrent broadcast.
//   - broadcast never blocks (drops under backpressure).
//   - broadcast is panic-safe because Client.Send is never closed.
type Room struct {
	log        *slog.Logger
	sessionUID string

	mu      sync.RWMutex
	members map[string]*Client
}

func newRoom(log *slog.Logger, sessionUID string) *Room {
	return &Room{
		log:        log,
		sessionUID: sessionUID,
		members:    make(map[string]*Client),
	}
}

func (r *Room) join(c *Client) {
	r.mu.Lock()
	r.members[c.ConnID] = c
	r.mu.Unlock()

	r.log.Info("room.join", "session_uid", r.sessionUID, "conn_id", c.ConnID, "role", c.Role, "uid", c.UID)
}

// leave reports whether a member was actually removed.
func (r *Room) leave(connID string) bool {
	r.mu.Lock()
	c, ok := r.members[connID]
	delete(r.members, connID)
	r.mu.Unlock()

	// Signal shutdown after removal so a broadcaster holding the pointer
	// never races the teardown.
	if c != nil {
		c.Close()
	}
	if ok {
		r.log.Info("room.leave", "session_uid", r.sessionUID, "conn_id", connID)
	}
	return ok
}

func (r *Room) broadcast(msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, m := range r.members {
		if m == nil {
			continue
		}

		out := msg
		if m.Role == session.RoleHost {
			out = Message{Type: TypeStateChangeAck, Page: msg.Page, State: msg.State}
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- out:
			delivered++
		default:
			// Drop rather than block the whole room.
		}
	}
	return delivered
}
