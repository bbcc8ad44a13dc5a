package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the transport boundary. Each kind maps to a
// distinct HTTP status and a machine-readable code in error envelopes.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindStorage            Kind = "StorageError"
	KindRateLimited        Kind = "RateLimited"
	KindUnauthorized       Kind = "Unauthorized"
	KindNotFound           Kind = "NotFound"
	KindInternal           Kind = "InternalError"
)

// Error carries a Kind alongside the usual message and wrapped cause.
// The engine returns these; only the transport layer turns them into
// status codes.
type Error struct {
	Kind    Kind
	Code    string // machine-readable, e.g. "empty_text"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidation builds a ValidationError for input that failed a precondition.
func NewValidation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NewUnavailable wraps a failure of an external collaborator (embedder).
func NewUnavailable(message string, err error) *Error {
	return &Error{Kind: KindServiceUnavailable, Code: "service_unavailable", Message: message, Err: err}
}

// NewStorage wraps an event store I/O failure.
func NewStorage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Code: "storage_error", Message: message, Err: err}
}

// NewRateLimited reports that the caller exceeded a configured rate.
func NewRateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "rate_limited", Message: message}
}

// NewUnauthorized reports a missing or incorrect API key.
func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: message}
}

// NewInternal wraps an unhandled fault.
func NewInternal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "internal error", Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to InternalError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine-readable code from an error chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindServiceUnavailable, KindStorage:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
