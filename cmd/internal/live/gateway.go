package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"podium/cmd/internal/fault"
	"podium/cmd/internal/session"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout      = 5 * time.Second
	wsDefaultHeartbeatInterval = 30 * time.Second
	wsDefaultHeartbeatTimeout  = 10 * time.Second
	wsMaxPingFailures          = 3

	wsMaxFrameBytes = 4 << 10
)

// Gateway upgrades HTTP requests to websocket connections and keeps them
// registered with the Hub for the lifetime of the transport connection.
// Cleanup is driven solely by the transport's disconnect signal; there are
// no leases or timers beyond the heartbeat.
type Gateway struct {
	log   *slog.Logger
	hub   *Hub
	guard *session.Guard

	allowedOrigins []string

	writeTimeout      time.Duration
	sendQueueSize     int
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewGateway constructs a Gateway with env-tunable limits.
func NewGateway(log *slog.Logger, hub *Hub, guard *session.Guard) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{log: log, hub: hub, guard: guard}

	g.allowedOrigins = envCSV("PODIUM_WS_ALLOWED_ORIGINS", "")
	g.writeTimeout = envDuration("PODIUM_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.heartbeatInterval = envDuration("PODIUM_WS_HEARTBEAT_INTERVAL", wsDefaultHeartbeatInterval)
	g.heartbeatTimeout = envDuration("PODIUM_WS_HEARTBEAT_TIMEOUT", wsDefaultHeartbeatTimeout)

	g.sendQueueSize = envInt("PODIUM_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	return g
}

// wsRequest adapts the upgrade request's query parameters to the guard's
// Request contract. Browsers cannot set headers on websocket upgrades, so
// the credential and uid travel as query parameters here.
type wsRequest struct {
	token string
	uid   string
}

func (q wsRequest) Credential() string { return q.token }

func (q wsRequest) Marker(string) (string, bool) {
	if q.uid == "" {
		return "", false
	}
	return q.uid, true
}

func (q wsRequest) SetMarker(string, string) {}

// HandleWS authorizes, upgrades, and runs one live connection for
// sessionUID until the peer disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request, sessionUID string) {
	if !g.originAllowed(r) {
		g.log.Info("ws.reject.origin", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	q := wsRequest{
		token: strings.TrimSpace(r.URL.Query().Get("token")),
		uid:   strings.TrimSpace(r.URL.Query().Get("uid")),
	}

	role, _, err := g.guard.RequireSession(r.Context(), sessionUID, q)
	if err != nil {
		g.log.Info("ws.reject.auth", "session_uid", sessionUID, "err", err)
		switch fault.KindOf(err) {
		case fault.Authentication:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case fault.Authorization:
			http.Error(w, "forbidden", http.StatusForbidden)
		case fault.NotFound:
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	uid, ok := q.Marker(sessionUID)
	if !ok {
		http.Error(w, "uid required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(g.allowedOrigins),
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(wsMaxFrameBytes)

	connID := uuid.NewString()
	client := NewClient(connID, role, uid, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Deregister(sessionUID, connID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Register(sessionUID, client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case msg := <-client.Send:
				if err := g.writeMessage(ctx, conn, msg); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// The live channel is push-only; inbound frames are drained and
	// discarded. A read error is the disconnect signal.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				shutdown(websocket.StatusNormalClosure, "peer closed")
			} else {
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break
		}
	}

	<-writerDone
	<-heartbeatDone
}

func (g *Gateway) writeMessage(parent context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(parent, g.writeTimeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// originAllowed applies the configured allowlist. An empty allowlist accepts
// same-host requests only, which websocket.Accept enforces on its own.
func (g *Gateway) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(g.allowedOrigins) == 0 {
		return true
	}
	for _, a := range g.allowedOrigins {
		if origin == a {
			return true
		}
	}
	return false
}

func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		host := a
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if j := strings.IndexByte(host, ':'); j >= 0 {
			host = host[:j]
		}
		if host != "" {
			out = append(out, host)
		}
	}
	return out
}

// ---- env helpers ----

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
