// Package artifacterr defines the transport-neutral error kinds the
// artifact service surfaces, so the HTTP adaptor can map a Kind to a status
// code without importing the service or store packages.
package artifacterr

import (
	"errors"
	"fmt"
)

// Kind is one of the client-visible outcomes an operation can fail with.
type Kind string

const (
	KindInput          Kind = "InputError"
	KindRequestConflict Kind = "RequestConflict"
	KindNotFound       Kind = "ResourceNotFound"
	KindAuthorization  Kind = "AuthorizationError"
	KindInternal       Kind = "InternalError"
)

// Error wraps a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, artifacterr.KindRequestConflict) read naturally by
// comparing against a sentinel *Error carrying just a Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Message == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return false
}

func Input(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindRequestConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else — an un-typed collaborator failure is
// treated as an internal error rather than surfaced verbatim.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
