package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

var (
	// ErrPayloadTooLarge means the request body exceeded the store's limit;
	// the same data must be retried in smaller batches
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTransient marks rate limiting, unavailability and timeouts
	ErrTransient = errors.New("transient vector store failure")

	// ErrUnauthorized means the store rejected the credentials
	ErrUnauthorized = errors.New("vector store rejected credentials")

	// ErrNotFound means the collection or resource does not exist
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-success HTTP response from the vector store
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	RetryAfter time.Duration

	kind error
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap exposes the error class (ErrPayloadTooLarge, ErrTransient, ...)
func (e *StatusError) Unwrap() error {
	return e.kind
}

// newStatusError classifies an HTTP status
func newStatusError(op string, status int, body string, retryAfter time.Duration) *StatusError {
	e := &StatusError{Op: op, StatusCode: status, Body: body, RetryAfter: retryAfter}
	switch {
	case status == http.StatusRequestEntityTooLarge:
		e.kind = ErrPayloadTooLarge
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout,
		status >= 500:
		e.kind = ErrTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.kind = ErrUnauthorized
	case status == http.StatusNotFound:
		e.kind = ErrNotFound
	}
	return e
}

// IsTransient reports whether err is worth retrying unchanged: rate
// limiting, 5xx, timeouts and refused or reset connections. Cancellation
// by the caller is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// retryAfter extracts the server-requested delay, if any
func retryAfter(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
