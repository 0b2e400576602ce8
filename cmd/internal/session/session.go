package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role of a connected party within a session.
type Role string

const (
	// RoleHost is the presenter.
	RoleHost Role = "host"
	// RoleUser is an audience member.
	RoleUser Role = "user"
)

// Session is the live presentation record. It is stored twice with identical
// contents: once keyed by the host token for auth lookups, once keyed by the
// public uid for shareable-link lookups. Only Page and State change after
// creation.
type Session struct {
	Token     string `json:"token"`
	UserToken string `json:"userToken"`
	Page      string `json:"page"`
	State     string `json:"state"`
	UID       string `json:"uid"`
	APIURL    string `json:"apiUrl"`
	WebUIURL  string `json:"webUiUrl"`
	WSURL     string `json:"wsUrl,omitempty"`
}

// Identity binds a role-scoped token to a per-connection uid. Created at most
// once per (token, uid) pair, never mutated or deleted.
type Identity struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

// PublicInfo is the unauthenticated getSession view. It deliberately exposes
// the user token: it is the only way an unauthenticated client can discover
// the credential it needs to authenticate further. The host token is never
// exposed.
type PublicInfo struct {
	UserToken string `json:"userToken"`
	APIURL    string `json:"apiUrl"`
	WebUIURL  string `json:"webUiUrl"`
	WSURL     string `json:"wsUrl,omitempty"`
}

// Request carries the per-call transport state the core needs: the credential
// header and the session-scoped identity marker. The transport adapter
// implements it over HTTP headers and cookies.
type Request interface {
	// Credential returns the raw credential field, or "" when absent.
	Credential() string
	// Marker returns the identity marker previously issued for the session.
	Marker(sessionUID string) (string, bool)
	// SetMarker issues an identity marker scoped to the session.
	SetMarker(sessionUID, uid string)
}

// Broadcaster fans out state changes to live user connections. Delivery is
// best-effort; implementations must never return control-flow errors into
// SetState.
type Broadcaster interface {
	StateChanged(sessionUID, token, page, state string)
}

// NewUID returns a ULID (26 chars). Collision probability is negligible over
// expected session volume; uniqueness is probabilistic, not enforced.
func NewUID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}
