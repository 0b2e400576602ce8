package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"podium/cmd/internal/fault"
	"podium/cmd/internal/store"
	"podium/cmd/security/token"
)

// Registry implements the session lifecycle API. All methods are stateless
// request handlers; the only shared mutable state is the stores, which each
// backend makes safe for concurrent independent key operations.
type Registry struct {
	log *slog.Logger

	verifier *token.Verifier
	guard    *Guard

	sessions store.Store[Session]
	hosts    store.Store[Identity]
	users    store.Store[Identity]

	hub Broadcaster
}

// NewRegistry constructs a Registry. hub may be nil, in which case state
// changes are stored but not broadcast.
func NewRegistry(
	log *slog.Logger,
	verifier *token.Verifier,
	sessions store.Store[Session],
	hosts, users store.Store[Identity],
	hub Broadcaster,
) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log,
		verifier: verifier,
		guard:    NewGuard(verifier, sessions),
		sessions: sessions,
		hosts:    hosts,
		users:    users,
		hub:      hub,
	}
}

// Guard exposes the registry's authorization guard to sibling components
// (reaction ledger, live gateway).
func (r *Registry) Guard() *Guard { return r.guard }

// NewSessionBody is the creation request body.
type NewSessionBody struct {
	UserToken string `json:"userToken"`
	APIURL    string `json:"apiUrl"`
	WebUIURL  string `json:"webUiUrl"`
	WSURL     string `json:"wsUrl,omitempty"`
}

// NewSessionResult is the creation response.
type NewSessionResult struct {
	Token      string `json:"token"`
	HostUID    string `json:"hostUid"`
	SessionUID string `json:"sessionUid"`
}

// NewSession creates a session. The request must carry a valid host
// credential; the body must carry a second, independently signed user
// credential. The session record is written under both the host token and
// the public uid; the two copies have identical contents. The caller's
// identity marker is set to the new host uid.
//
// The dual write is not atomic. A crash between the two writes leaves the
// copies diverged; accepted risk, last write wins per key.
func (r *Registry) NewSession(ctx context.Context, req Request, body NewSessionBody) (NewSessionResult, error) {
	hostToken, err := r.guard.RequireToken(req)
	if err != nil {
		return NewSessionResult{}, err
	}

	if _, err := r.verifier.Verify(body.UserToken); err != nil {
		if errors.Is(err, token.ErrKeyMissing) {
			return NewSessionResult{}, fault.Wrap(fault.Configuration, "session: no verification key configured", err)
		}
		return NewSessionResult{}, ErrInvalidUserToken
	}

	if strings.TrimSpace(body.APIURL) == "" || strings.TrimSpace(body.WebUIURL) == "" {
		return NewSessionResult{}, fault.New(fault.Validation, "session: apiUrl and webUiUrl are required")
	}

	hostUID := NewUID()
	sessionUID := NewUID()

	host := Identity{Token: hostToken, UID: hostUID}
	if err := r.hosts.Put(ctx, store.Key{ID: hostUID, Indexes: []string{hostToken}}, host); err != nil {
		return NewSessionResult{}, err
	}

	sess := Session{
		Token:     hostToken,
		UserToken: body.UserToken,
		UID:       sessionUID,
		APIURL:    body.APIURL,
		WebUIURL:  body.WebUIURL,
		WSURL:     body.WSURL,
	}
	if err := r.putSessionBothKeys(ctx, sess); err != nil {
		return NewSessionResult{}, err
	}

	req.SetMarker(sessionUID, hostUID)

	r.log.Info("session.create", "session_uid", sessionUID, "host_uid", hostUID)

	return NewSessionResult{Token: hostToken, HostUID: hostUID, SessionUID: sessionUID}, nil
}

// GetSession is the public session lookup. Returns nil (not an error) when
// the session does not exist: this endpoint is how an unauthenticated client
// bootstraps, so absence is an answer, not a failure.
func (r *Registry) GetSession(ctx context.Context, sessionUID string) (*PublicInfo, error) {
	sess, err := r.guard.Resolve(ctx, sessionUID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &PublicInfo{
		UserToken: sess.UserToken,
		APIURL:    sess.APIURL,
		WebUIURL:  sess.WebUIURL,
		WSURL:     sess.WSURL,
	}, nil
}

// Login registers the caller as an audience member and returns their uid.
// A previously issued identity marker is reused verbatim: no new User record
// and no new marker. Otherwise a fresh uid is minted, recorded, and issued.
func (r *Registry) Login(ctx context.Context, sessionUID string, req Request) (string, error) {
	_, sess, err := r.guard.RequireUserSession(ctx, sessionUID, req)
	if err != nil {
		return "", err
	}

	if uid, ok := req.Marker(sessionUID); ok {
		r.log.Debug("session.login.reuse", "session_uid", sessionUID, "uid", uid)
		return uid, nil
	}

	uid := NewUID()
	user := Identity{Token: sess.UserToken, UID: uid}
	if err := r.users.Put(ctx, store.Key{ID: uid, Indexes: []string{sess.UserToken}}, user); err != nil {
		return "", err
	}
	req.SetMarker(sessionUID, uid)

	r.log.Info("session.login", "session_uid", sessionUID, "uid", uid)
	return uid, nil
}

// SetState updates the session's page and state. Requires a host credential
// bound to the session AND an identity marker matching a registered host uid
// for that credential; token validity alone is not sufficient. The broadcast
// is best-effort and happens after the store writes; it never fails the call.
func (r *Registry) SetState(ctx context.Context, sessionUID, page, state string, req Request) error {
	if strings.TrimSpace(page) == "" || strings.TrimSpace(state) == "" {
		return fault.New(fault.Validation, "session: page and state are required")
	}

	hostToken, sess, err := r.guard.RequireHostSession(ctx, sessionUID, req)
	if err != nil {
		return err
	}

	uid, ok := req.Marker(sessionUID)
	if !ok {
		return ErrMustLogIn
	}
	known, err := r.hosts.Get(ctx, store.Key{ID: uid, Indexes: []string{hostToken}})
	if err != nil {
		return err
	}
	if len(known) == 0 {
		return ErrNotRegistered
	}

	sess.Page = page
	sess.State = state
	if err := r.putSessionBothKeys(ctx, sess); err != nil {
		return err
	}

	r.log.Info("session.state", "session_uid", sessionUID, "page", page, "state", state)

	if r.hub != nil {
		// The broadcast carries the user token, which getSession already
		// exposes publicly. The host token never leaves auth paths.
		r.hub.StateChanged(sessionUID, sess.UserToken, page, state)
	}
	return nil
}

// GetState returns the full session record. Requires some valid credential
// bound to the session (either role) AND an identity marker corresponding to
// a registered host or user for it.
func (r *Registry) GetState(ctx context.Context, sessionUID string, req Request) (Session, error) {
	role, sess, err := r.guard.RequireSession(ctx, sessionUID, req)
	if err != nil {
		return Session{}, err
	}

	uid, ok := req.Marker(sessionUID)
	if !ok {
		return Session{}, ErrMustLogIn
	}

	var key store.Key
	switch role {
	case RoleHost:
		key = store.Key{ID: uid, Indexes: []string{sess.Token}}
	default:
		key = store.Key{ID: uid, Indexes: []string{sess.UserToken}}
	}

	var registered []Identity
	if role == RoleHost {
		registered, err = r.hosts.Get(ctx, key)
	} else {
		registered, err = r.users.Get(ctx, key)
	}
	if err != nil {
		return Session{}, err
	}
	if len(registered) == 0 {
		return Session{}, ErrNotRegistered
	}

	return sess, nil
}

// putSessionBothKeys keeps the token-keyed and uid-keyed copies in sync.
func (r *Registry) putSessionBothKeys(ctx context.Context, sess Session) error {
	if err := r.sessions.Put(ctx, store.StringKey(sess.Token), sess); err != nil {
		return err
	}
	return r.sessions.Put(ctx, store.StringKey(sess.UID), sess)
}
