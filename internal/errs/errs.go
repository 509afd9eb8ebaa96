// Package errs defines the engine-wide error taxonomy (§7) and the
// component-tagged wrapper every backend call site returns through.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	// InvalidInput is caller-visible and never retried.
	InvalidInput Kind = "invalid_input"
	// BackendUnavailable is transient; the engine retries the backend once
	// with a 250ms backoff before surfacing it.
	BackendUnavailable Kind = "backend_unavailable"
	// LockUnavailable is surfaced to the caller with holder info; the
	// caller decides whether to retry.
	LockUnavailable Kind = "lock_unavailable"
	// BackendWriteFailed triggers ingestion compensation and surfaces.
	BackendWriteFailed Kind = "backend_write_failed"
	// EmbedderFailed is transient; one retry.
	EmbedderFailed Kind = "embedder_failed"
	// Cancelled marks cooperative cancellation (ctx.Err()).
	Cancelled Kind = "cancelled"
)

// Error wraps an underlying error with a [Kind] and the component that
// produced it, so callers can branch on Kind without string-matching
// messages.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as an [Error] with the given kind and component. Returns nil
// if err is nil.
func New(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

// Newf is like [New] but builds err from a format string.
func Newf(kind Kind, component, format string, args ...any) error {
	return &Error{Kind: kind, Component: component, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an [Error]. The second
// return is false when err carries no known Kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
