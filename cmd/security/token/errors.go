package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidToken is returned for any structural or cryptographic
	// verification failure. The cause is deliberately not distinguished.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeyMissing is returned when no verification key is configured.
	// Fatal configuration problem; do not retry.
	ErrKeyMissing = errors.New("verification key missing")
)
