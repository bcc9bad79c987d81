package auth

import (
	"errors"
)

// Kind classifies an authentication or authorization failure.
// The string form is stable and used as a log field and metric label.
type Kind string

// Failure kinds. StoreUnavailable is a server-side failure; all others are
// client-facing.
const (
	KindMalformedToken     Kind = "malformed_token"
	KindInvalidSignature   Kind = "invalid_signature"
	KindExpired            Kind = "expired"
	KindAccountNotFound    Kind = "account_not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindStoreUnavailable   Kind = "store_unavailable"
)

// Error is an auth failure of a given Kind, optionally wrapping a cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth: " + string(e.Kind)
	}
	return "auth: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrExpired)
// holds for every expired-token error regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrMalformedToken     = &Error{Kind: KindMalformedToken}
	ErrInvalidSignature   = &Error{Kind: KindInvalidSignature}
	ErrExpired            = &Error{Kind: KindExpired}
	ErrAccountNotFound    = &Error{Kind: KindAccountNotFound}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTokenFailure reports whether the kind means the caller must
// reauthenticate (any token or account problem).
func (k Kind) IsTokenFailure() bool {
	switch k {
	case KindMalformedToken, KindInvalidSignature, KindExpired, KindAccountNotFound, KindUnauthenticated:
		return true
	default:
		return false
	}
}
