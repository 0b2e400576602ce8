// Package session implements the Podium session lifecycle: creation, public
// discovery, audience login, host-driven state updates, and authorized state
// reads.
//
// Authorization model: every session binds two independently signed
// credentials, one per role. The host credential authorizes session creation
// and state updates; the user credential authorizes login, reactions, and
// state reads. A host credential never satisfies a user-scoped check and vice
// versa. On top of credential checks, mutating and reading operations require
// an identity marker (a cookie-equivalent issued at creation or login) that
// correlates the caller to a previously registered host or user uid.
package session
