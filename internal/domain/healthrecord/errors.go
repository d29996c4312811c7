package healthrecord

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is returned when the platform's OS version lacks the
	// capability an operation needs. No store call is attempted.
	ErrUnsupportedPlatform = errors.New("health data not available on this platform")
	// ErrTypeNotFound is returned by Resolve for identifiers outside the catalog.
	ErrTypeNotFound = errors.New("type not found in catalog")
	// ErrMissingArgument is returned when a query call carries no type string.
	ErrMissingArgument = errors.New("Missing required argument type")
)

// noErrorGiven is reported when the store fails a query without saying why.
const noErrorGiven = "No error given"

// UnsupportedTypeError carries the raw identifier the caller supplied.
type UnsupportedTypeError struct {
	Kind       Kind
	Identifier string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type %q", e.Kind, e.Identifier)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrTypeNotFound }

// QueryFailedError wraps a store-reported query failure.
type QueryFailedError struct {
	Message string
	Err     error
}

func (e *QueryFailedError) Error() string {
	return "query failed: " + e.Message
}

func (e *QueryFailedError) Unwrap() error { return e.Err }

func newQueryFailed(err error) *QueryFailedError {
	if err == nil {
		return &QueryFailedError{Message: noErrorGiven}
	}
	return &QueryFailedError{Message: err.Error(), Err: err}
}

// AuthorizationError wraps a store-reported authorization failure.
type AuthorizationError struct {
	Message string
	Err     error
}

func (e *AuthorizationError) Error() string {
	return "authorization failed: " + e.Message
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
