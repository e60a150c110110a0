// Package vgerrors classifies the failure modes the hybrid write path can
// produce so callers can branch on kind with errors.As instead of string
// matching on error messages.
package vgerrors

import "fmt"

// Kind is one of the seven error categories of the dual-write error
// taxonomy: malformed input, transient transport, auth, primary failure,
// index-sync failure, materializer failure, and lock timeout.
type Kind string

const (
	Malformed           Kind = "malformed"
	Transient           Kind = "transient"
	Auth                Kind = "auth"
	PrimaryFailure      Kind = "primary_failure"
	IndexSyncFailure    Kind = "index_sync_failure"
	MaterializerFailure Kind = "materializer_failure"
	LockTimeout         Kind = "lock_timeout"
)

// Error wraps an underlying cause with a Kind and a component-supplied
// message, so the coordinator can decide retry/rollback policy without
// inspecting error text.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// As is a thin wrapper kept local to avoid importing errors in callers
// that only need Kind checks; it delegates to errors.As semantics for a
// single *Error target.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
