package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation      = errors.New("bad request")
	ErrUnauthenticated = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("internal error")
	ErrRateLimited     = errors.New("rate limited")
)

// Error carries a kind (one of the sentinels above), a message that is safe to show
// to the caller and an optional underlying cause that only goes to the logs.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return e.Kind == target }

func Validation(msg string) *Error      { return &Error{Kind: ErrValidation, Msg: msg} }
func NotFound(msg string) *Error        { return &Error{Kind: ErrNotFound, Msg: msg} }
func Forbidden(msg string) *Error       { return &Error{Kind: ErrForbidden, Msg: msg} }
func Unauthenticated(msg string) *Error { return &Error{Kind: ErrUnauthenticated, Msg: msg} }
func RateLimited(msg string) *Error     { return &Error{Kind: ErrRateLimited, Msg: msg} }

func Persistence(msg string, cause error) *Error {
	return &Error{Kind: ErrPersistence, Msg: msg, Err: cause}
}

// Status maps an error to the HTTP status the API layer answers with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing text; causes of untyped errors are hidden.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}
