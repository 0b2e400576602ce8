// Package reaction records audience reactions as an append-only, indexed
// ledger. Reactions are distinct events: identical (uid, page, reaction)
// triples recorded multiple times are all retained, never deduplicated.
package reaction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"podium/cmd/internal/fault"
	"podium/cmd/internal/session"
	"podium/cmd/internal/store"
)

// Indexes is the ledger's declared index order. Session first: it is the
// field every query filters on, and prefix-scan backends can only filter on
// a consecutive prefix of this order.
var Indexes = []string{"session", "page", "uid"}

// Reaction is one recorded audience reaction. Immutable once written.
type Reaction struct {
	Time       time.Time `json:"time"`
	Token      string    `json:"token"`
	UID        string    `json:"uid"`
	Page       string    `json:"page"`
	Reaction   string    `json:"reaction"`
	SessionUID string    `json:"sessionUid"`
}

// ErrUIDMismatch: the self-asserted uid does not match the caller's identity
// marker.
var ErrUIDMismatch = fault.New(fault.Authorization, "uid does not match identity marker")

// Ledger validates and appends reactions.
type Ledger struct {
	log       *slog.Logger
	guard     *session.Guard
	reactions store.Store[Reaction]
	users     store.Store[session.Identity]
}

// NewLedger constructs a Ledger. The reactions store must be declared with
// exactly the Indexes of this package.
func NewLedger(log *slog.Logger, guard *session.Guard, reactions store.Store[Reaction], users store.Store[session.Identity]) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{log: log, guard: guard, reactions: reactions, users: users}
}

// React appends a reaction. Requires a valid user credential bound to the
// session, an identity marker equal to uid (self-assertion must match proof
// of identity), and a registered User record for the session's user token.
func (l *Ledger) React(ctx context.Context, sessionUID, uid, page, reactionName string, req session.Request) error {
	if strings.TrimSpace(uid) == "" || strings.TrimSpace(page) == "" || strings.TrimSpace(reactionName) == "" {
		return fault.New(fault.Validation, "reaction: uid, page and reaction are required")
	}

	userToken, _, err := l.guard.RequireUserSession(ctx, sessionUID, req)
	if err != nil {
		return err
	}

	marker, ok := req.Marker(sessionUID)
	if !ok {
		return session.ErrMustLogIn
	}
	if marker != uid {
		return ErrUIDMismatch
	}

	registered, err := l.users.Get(ctx, store.Key{ID: uid, Indexes: []string{userToken}})
	if err != nil {
		return err
	}
	if len(registered) == 0 {
		return session.ErrNotRegistered
	}

	rec := Reaction{
		Time:       time.Now().UTC(),
		Token:      userToken,
		UID:        uid,
		Page:       page,
		Reaction:   reactionName,
		SessionUID: sessionUID,
	}

	// Fresh id per event; the index fields plus the generated suffix make
	// every append unique, so duplicates of the same triple all survive.
	key := store.Key{ID: session.NewUID(), Indexes: []string{sessionUID, page, uid}}
	if err := l.reactions.Put(ctx, key, rec); err != nil {
		return err
	}

	l.log.Info("reaction.record", "session_uid", sessionUID, "uid", uid, "page", page, "reaction", reactionName)
	return nil
}

// List queries recorded reactions by the declared indexes.
func (l *Ledger) List(ctx context.Context, filters map[string]string) ([]Reaction, error) {
	return l.reactions.List(ctx, filters)
}
