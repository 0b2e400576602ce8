package live

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"podium/cmd/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message delivered to %s", c.ConnID)
		return Message{}
	}
}

func TestHub_BroadcastTargetsUsersOnly(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	host := NewClient("c-host", session.RoleHost, "h1", 8)
	u1 := NewClient("c-u1", session.RoleUser, "u1", 8)
	u2 := NewClient("c-u2", session.RoleUser, "u2", 8)

	h.Register("s1", host)
	h.Register("s1", u1)
	h.Register("s1", u2)

	h.StateChanged("s1", "user-token", "2", "voting")

	for _, c := range []*Client{u1, u2} {
		msg := recv(t, c)
		if msg.Type != TypeStateChange || msg.Page != "2" || msg.State != "voting" || msg.Token != "user-token" {
			t.Fatalf("user message = %+v", msg)
		}
	}

	ack := recv(t, host)
	if ack.Type != TypeStateChangeAck {
		t.Fatalf("host received %q, want delivery ack", ack.Type)
	}
	if ack.Token != "" {
		t.Fatalf("ack should not carry the token: %+v", ack)
	}
}

func TestHub_BroadcastScopedToSession(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	inSession := NewClient("c1", session.RoleUser, "u1", 8)
	other := NewClient("c2", session.RoleUser, "u2", 8)

	h.Register("s1", inSession)
	h.Register("s2", other)

	h.StateChanged("s1", "tok", "1", "idle")

	recv(t, inSession)
	select {
	case msg := <-other.Send:
		t.Fatalf("client in other session received %+v", msg)
	default:
	}

	// Unknown session: no-op, no panic.
	h.StateChanged("absent", "tok", "1", "idle")
}

func TestHub_DeregisterIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	c := NewClient("c1", session.RoleUser, "u1", 8)
	h.Register("s1", c)

	h.Deregister("s1", "c1")
	h.Deregister("s1", "c1")       // already removed
	h.Deregister("s1", "unknown")  // never registered
	h.Deregister("absent", "c1")   // unknown session

	select {
	case <-c.Done():
	default:
		t.Fatalf("deregister should close the client")
	}

	h.StateChanged("s1", "tok", "1", "idle")
	select {
	case msg := <-c.Send:
		t.Fatalf("removed client received %+v", msg)
	default:
	}
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	slow := NewClient("c-slow", session.RoleUser, "u1", 1)
	fast := NewClient("c-fast", session.RoleUser, "u2", 8)
	h.Register("s1", slow)
	h.Register("s1", fast)

	// Fill the slow client's queue; further sends to it must be dropped.
	h.StateChanged("s1", "tok", "1", "a")
	h.StateChanged("s1", "tok", "2", "b")
	h.StateChanged("s1", "tok", "3", "c")

	if got := len(slow.Send); got != 1 {
		t.Fatalf("slow client queued %d messages, want 1 (rest dropped)", got)
	}
	if got := len(fast.Send); got != 3 {
		t.Fatalf("fast client queued %d messages, want 3", got)
	}
}

func TestHub_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				c := NewClient(id, session.RoleUser, "u"+id, 4)
				h.Register("s1", c)
				h.StateChanged("s1", "tok", "p", "s")
				h.Deregister("s1", id)
			}
		}(i)
	}
	wg.Wait()
}

func TestClient_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := NewClient("c1", session.RoleUser, "u1", 0)
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatalf("done channel should be closed")
	}

	var nilClient *Client
	select {
	case <-nilClient.Done():
	default:
		t.Fatalf("nil client Done should read as closed")
	}
	nilClient.Close()
}
