// Package apperr defines the error kinds shared by every component and their
// mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
)

// CredentialsDetail is the only message ever returned for authentication failures.
const CredentialsDetail = "could not validate credentials"

// Error is a domain error carrying a kind, a client-safe detail and an
// optional wrapped cause that is never shown to clients.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input or a violated business rule.
func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

// NotFound reports a missing principal, session or transaction.
func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// Unauthorized reports a caller lacking the required role or ownership.
func Unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

// Unauthenticated reports rejected credentials. The detail is fixed so callers
// cannot learn which check failed.
func Unauthenticated(cause error) *Error {
	return &Error{Kind: KindUnauthenticated, Detail: CredentialsDetail, Err: cause}
}

// Internal wraps a storage or unexpected failure with the operation name.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Detail: "internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a status code and a client-safe detail.
func HTTPStatus(err error) (int, string) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal server error"
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest, e.Detail
	case KindUnauthenticated:
		return http.StatusUnauthorized, CredentialsDetail
	case KindUnauthorized:
		return http.StatusForbidden, e.Detail
	case KindNotFound:
		return http.StatusNotFound, e.Detail
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
