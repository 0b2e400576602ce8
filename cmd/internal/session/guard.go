package session

import (
	"context"
	"errors"

	"podium/cmd/internal/fault"
	"podium/cmd/internal/store"
	"podium/cmd/security/token"
)

// Guard extracts and verifies credentials and enforces host-vs-user binding
// against the stored session record.
type Guard struct {
	verifier *token.Verifier
	sessions store.Store[Session]
}

// NewGuard constructs a Guard.
func NewGuard(verifier *token.Verifier, sessions store.Store[Session]) *Guard {
	return &Guard{verifier: verifier, sessions: sessions}
}

// RequireToken reads and verifies the request credential. The verified
// payload is discarded; trust decisions use only signature validity.
func (g *Guard) RequireToken(req Request) (string, error) {
	cred := req.Credential()
	if cred == "" {
		return "", ErrMissingCredential
	}
	if _, err := g.verifier.Verify(cred); err != nil {
		if errors.Is(err, token.ErrKeyMissing) {
			return "", fault.Wrap(fault.Configuration, "session: no verification key configured", err)
		}
		return "", ErrInvalidCredential
	}
	return cred, nil
}

// Resolve loads the current session record for sessionUID.
// ErrSessionNotFound when absent.
func (g *Guard) Resolve(ctx context.Context, sessionUID string) (Session, error) {
	docs, err := g.sessions.Get(ctx, store.StringKey(sessionUID))
	if err != nil {
		return Session{}, err
	}
	if len(docs) == 0 {
		return Session{}, ErrSessionNotFound
	}
	// Backends that version writes return oldest first; the live record is
	// the last one.
	return docs[len(docs)-1], nil
}

// RequireHostSession verifies the request credential and checks it against
// the session's host token.
func (g *Guard) RequireHostSession(ctx context.Context, sessionUID string, req Request) (string, Session, error) {
	cred, err := g.RequireToken(req)
	if err != nil {
		return "", Session{}, err
	}

	sess, err := g.Resolve(ctx, sessionUID)
	if err != nil {
		return "", Session{}, err
	}
	if sess.Token != cred {
		return "", Session{}, ErrCredentialMismatch
	}
	return cred, sess, nil
}

// RequireUserSession verifies the request credential and checks it against
// the session's user token. A host credential never satisfies this check.
func (g *Guard) RequireUserSession(ctx context.Context, sessionUID string, req Request) (string, Session, error) {
	cred, err := g.RequireToken(req)
	if err != nil {
		return "", Session{}, err
	}

	sess, err := g.Resolve(ctx, sessionUID)
	if err != nil {
		return "", Session{}, err
	}
	if sess.UserToken != cred {
		return "", Session{}, ErrCredentialMismatch
	}
	return cred, sess, nil
}

// RequireSession accepts either role. Used by state reads and the live
// gateway, where both the host and the audience are entitled to connect.
func (g *Guard) RequireSession(ctx context.Context, sessionUID string, req Request) (Role, Session, error) {
	cred, err := g.RequireToken(req)
	if err != nil {
		return "", Session{}, err
	}

	sess, err := g.Resolve(ctx, sessionUID)
	if err != nil {
		return "", Session{}, err
	}

	switch cred {
	case sess.Token:
		return RoleHost, sess, nil
	case sess.UserToken:
		return RoleUser, sess, nil
	default:
		return "", Session{}, ErrCredentialMismatch
	}
}
