package facegate

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a tool-surface failure. The kind is part of the wire
// contract: clients branch on it, so values are stable strings.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindUnavailable     ErrorKind = "unavailable"
	KindNotFound        ErrorKind = "not_found"
	KindAlreadyExists   ErrorKind = "already_exists"
	KindInternal        ErrorKind = "internal"
)

// Error is a typed failure surfaced over the tool boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a typed error with the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and public message to an underlying cause.
// The cause is for logs and audit only; callers see Message.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the error kind, defaulting to KindInternal for untyped
// errors so that internals never leak to callers.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message for err. Untyped errors
// collapse to an opaque token; details stay in logs and audit.
func PublicMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}
