package session

import "podium/cmd/internal/fault"

// Public, stable faults for callers. The transport boundary maps kinds to
// response statuses; all messages except configuration faults are safe to
// surface verbatim.
var (
	// ErrMissingCredential: no credential field on the request.
	ErrMissingCredential = fault.New(fault.Authentication, "missing credential")

	// ErrInvalidCredential: credential present but fails verification.
	ErrInvalidCredential = fault.New(fault.Authentication, "invalid credential")

	// ErrInvalidUserToken: the second, body-supplied user credential fails
	// verification during session creation.
	ErrInvalidUserToken = fault.New(fault.Authentication, "invalid user token")

	// ErrSessionNotFound: referenced session does not exist.
	ErrSessionNotFound = fault.New(fault.NotFound, "session not found")

	// ErrCredentialMismatch: credential valid but not bound to the session
	// in the role the operation requires.
	ErrCredentialMismatch = fault.New(fault.Authorization, "credential does not match session")

	// ErrMustLogIn: no identity marker present at all.
	ErrMustLogIn = fault.New(fault.Authorization, "must be logged in")

	// ErrNotRegistered: identity marker present but unknown for the session.
	ErrNotRegistered = fault.New(fault.Authorization, "not registered")
)
