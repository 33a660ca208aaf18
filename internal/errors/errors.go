// Package errors defines the domain error taxonomy shared by every core
// operation and maps it onto transport codes (gRPC status, HTTP status).
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindInvalidOperation Kind = "INVALID_OPERATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindQuotaExceeded    Kind = "QUOTA_EXCEEDED"
	KindForbidden        Kind = "FORBIDDEN"
	KindInternal         Kind = "INTERNAL"
)

// Error is a classified domain error. Message is safe to show to end users,
// Cause is not.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on kind and message, so sentinel values below
// compare equal to wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func InvalidOperation(msg string) error { return New(KindInvalidOperation, msg) }
func NotFound(msg string) error         { return New(KindNotFound, msg) }
func Conflict(msg string) error         { return New(KindConflict, msg) }
func QuotaExceeded(msg string) error    { return New(KindQuotaExceeded, msg) }
func Forbidden(msg string) error        { return New(KindForbidden, msg) }

// Internal wraps a storage or infrastructure failure.
func Internal(cause error) error {
	return Wrap(KindInternal, "internal error", cause)
}

// KindOf reports the kind of err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// User facing messages.
var (
	ErrSelfSwipe         = InvalidOperation("you cannot respond to your own profile")
	ErrAlreadySwiped     = Conflict("already responded to this profile")
	ErrDailyLimit        = QuotaExceeded("daily like limit reached, try again tomorrow")
	ErrProfileNotFound   = NotFound("profile not found")
	ErrConnectionMissing = NotFound("connection not found")
	ErrNotParticipant    = Forbidden("you are not part of this connection")
	ErrProfileIncomplete = Forbidden("complete your profile to use this feature")
	ErrPairUnavailable   = InvalidOperation("this profile is no longer available")
	ErrAdminOnly         = Forbidden("admin role required")
	ErrConnectionClosed  = InvalidOperation("this connection is no longer active")
)
