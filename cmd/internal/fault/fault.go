// Package fault is the error taxonomy shared by the Podium core.
//
// Core packages return faults; the transport boundary catches them exactly
// once and serializes them. Every kind except Configuration is safe to
// surface verbatim.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault for the transport boundary.
type Kind uint8

const (
	// Unknown is any error that is not a fault.
	Unknown Kind = iota
	// Authentication: credential missing or fails signature verification.
	Authentication
	// Authorization: credential valid but role/identity binding not satisfied.
	Authorization
	// NotFound: referenced session does not exist.
	NotFound
	// Validation: malformed request body or illegal store filter.
	Validation
	// Configuration: missing verification key or similar. Fatal, not
	// user-facing; the transport must not leak its message.
	Configuration
)

func (k Kind) String() string {
	switch k {
	case Authentication:
		return "authentication"
	case Authorization:
		return "authorization"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a classified error. Use the constructors below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two faults of the same kind and message match under errors.Is, so
// packages can export sentinel faults.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// New constructs a fault of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs a fault carrying an underlying cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or Unknown for non-faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
