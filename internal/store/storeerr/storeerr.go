// Package storeerr implements the structured error taxonomy of
// spec.md §7. Every error the core surfaces across a public boundary is
// a *storeerr.Error so façades can switch on Kind instead of string
// matching, while still composing with errors.Is/errors.As via Unwrap.
package storeerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the error kinds of spec.md §7.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindCorruption       Kind = "corruption"
	KindConflict         Kind = "conflict"
	KindRetry            Kind = "retry"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindTooManyRequests  Kind = "too_many_requests"
	KindConcurrencyLimit Kind = "concurrency_limited"
	KindPermissionDenied Kind = "permission_denied"
	KindIO               Kind = "io"
	KindBackend          Kind = "backend"
	KindInvalid          Kind = "invalid"
)

// Error is the structured error every core operation returns.
type Error struct {
	Kind       Kind
	Reason     string
	Cause      error
	Account    *uint32
	RetryAfter time.Duration
	// Location is the "caused by" provenance, e.g. "kv/boltkv.Write".
	Location string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	if e.Location != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Location)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error at the given provenance location.
func New(kind Kind, location, reason string) *Error {
	return &Error{Kind: kind, Location: location, Reason: reason}
}

// Wrap builds an *Error wrapping cause.
func Wrap(kind Kind, location string, cause error) *Error {
	return &Error{Kind: kind, Location: location, Reason: cause.Error(), Cause: cause}
}

// WithAccount attaches an account id to e and returns e for chaining.
func (e *Error) WithAccount(account uint32) *Error {
	e.Account = &account
	return e
}

// WithRetryAfter attaches a retry-after hint (only meaningful for KindRetry).
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Is reports whether err (or any error it wraps) has the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
