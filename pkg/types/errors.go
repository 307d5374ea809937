package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transport layers can map it to a status
// code without inspecting message text. Every failure path in the core
// produces exactly one kind.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidStateTransition
	KindCapacityExceeded
	KindPermissionDenied
	KindConfigurationError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidStateTransition:
		return "invalid_state_transition"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindPermissionDenied:
		return "permission_denied"
	case KindConfigurationError:
		return "configuration_error"
	default:
		return "unexpected"
	}
}

// Error is the tagged error carried across component boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a tagged error with the given kind and message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef builds a tagged error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr tags an underlying error, preserving it for errors.Is/As chains.
func WrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err. Untagged errors are Unexpected.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
