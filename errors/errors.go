package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation       = fmt.Errorf("validation failed")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrUnknownCommand   = fmt.Errorf("%w: unknown command", ErrValidation)
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrBackpressure     = fmt.Errorf("connection buffer full")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// Code is the wire representation of an error sent back to a client.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeUnauthorized     Code = "unauthorized"
	CodeStoreUnavailable Code = "store_unavailable"
	CodeInternal         Code = "internal"
)

// Validation wraps a reason into ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unauthorized wraps a reason into ErrUnauthorized.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// StoreUnavailable keeps the underlying storage error reachable with errors.Is/As.
func StoreUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func ToCode(err error) Code {
	switch {
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case stderrors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

// MapToHTTPStatus translates a domain error into the status returned by the query surface.
func MapToHTTPStatus(err error) int {
	switch ToCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
