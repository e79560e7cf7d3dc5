// Package fault defines the typed error kinds used across the engine.
// Recoverable per-file failures are returned as *Error values so the
// ingest coordinator can classify them without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for diagnostics and API payloads.
type Kind string

const (
	KindInput     Kind = "input"     // unrecognized language, unreadable file, size limit
	KindParse     Kind = "parse"     // grammar failure after error-tolerant attempt
	KindSemantic  Kind = "semantic"  // invariant violation detected before commit
	KindStorage   Kind = "storage"   // transaction failure, constraint violation
	KindExternal  Kind = "external"  // clone failure, LLM timeout
	KindCancelled Kind = "cancelled" // cooperative cancellation
)

// Error carries a kind, the operation that failed, and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a kinded error from a format string.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Returns ("", false) when err carries no kind.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
