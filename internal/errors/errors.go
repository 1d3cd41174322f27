package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by every component. Handlers map these to HTTP
// statuses with StatusCode.
var (
	// Client errors
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnsupportedMediaType = errors.New("unsupported content type")
	ErrPayloadTooLarge      = errors.New("payload too large")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Consistency errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrRateLimited = errors.New("rate limited")

	// Upstream errors
	ErrUpstream    = errors.New("upstream error")
	ErrNotModified = errors.New("not modified")
)

// UpstreamError records a non-2xx answer from the remote store. It matches
// ErrUpstream, and ErrConflict as well when the remote answered 409.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("GitHub %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// StatusCode maps an error to the HTTP status a handler should answer with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstream):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// ClientError is a failure whose message is safe to show the caller. Kind is
// one of the sentinels above.
type ClientError struct {
	Kind    error
	Message string
}

func (e *ClientError) Error() string { return e.Message }

func (e *ClientError) Unwrap() error { return e.Kind }

// Newf builds a ClientError of the given kind.
func Newf(kind error, format string, args ...interface{}) error {
	return &ClientError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the text a handler should put in an error body. Client
// errors and upstream errors carry their own text; anything else is
// described by its status.
func Message(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	for _, sentinel := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrRateLimited, ErrPayloadTooLarge, ErrUnsupportedMediaType, ErrInvalidRequest} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "Internal error"
}
