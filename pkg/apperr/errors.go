// Package apperr holds the request-scoped error taxonomy shared by the
// backend and the client relay.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrValidation            = errors.New("validation error")
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrUnsupportedMediaType  = errors.New("unsupported media type")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrStoreUnavailable      = errors.New("store unavailable")
)

// Error carries a taxonomy kind, a client-safe message and the underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsValidation covers every error the caller can fix by changing the submission.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrUnsupportedMediaType)
}

func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrDependencyUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus maps a backend status code back onto the taxonomy.
func FromStatus(status int, message string) error {
	var kind error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrUnauthorized
	case http.StatusRequestEntityTooLarge:
		kind = ErrPayloadTooLarge
	case http.StatusUnsupportedMediaType:
		kind = ErrUnsupportedMediaType
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = ErrValidation
	case http.StatusServiceUnavailable:
		kind = ErrStoreUnavailable
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		kind = ErrDependencyUnavailable
	default:
		return errors.New(http.StatusText(status) + ": " + message)
	}
	return New(kind, message)
}

// PublicMessage returns text that is safe to show to the caller.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrDependencyUnavailable):
		return "The summary service is currently unavailable"
	case errors.Is(err, ErrStoreUnavailable):
		return "History store is not available"
	case IsValidation(err):
		return err.Error()
	default:
		return "Internal server error"
	}
}
