package submit

import (
	"errors"
	"fmt"
	"net/http"

	"fieldsync/internal/services"
)

// Kind classifies a failed delivery attempt.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindServer      Kind = "server"
	KindThrottled   Kind = "throttled"
	KindRejected    Kind = "rejected"
	KindUnavailable Kind = "unavailable"
)

// Error describes a delivery attempt that did not reach an accepted outcome.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		if msg == "" {
			msg = http.StatusText(e.Status)
		}
		return fmt.Sprintf("submit %s (%d): %s", e.Kind, e.Status, msg)
	}
	if msg == "" {
		return fmt.Sprintf("submit %s", e.Kind)
	}
	return fmt.Sprintf("submit %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps kinds onto the shared service markers.
func (e *Error) Is(target error) bool {
	switch target {
	case services.ErrRejected:
		return e.Kind == KindRejected
	case services.ErrTimeout:
		return e.Kind == KindTimeout
	case services.ErrTransient:
		return e.Kind != KindRejected
	}
	return false
}

// ErrorKind exposes the classification as a string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool { return e.Kind != KindRejected }

// ClassifyStatus maps a non-success HTTP status to a failure kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status == http.StatusTooEarly:
		return KindThrottled
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindRejected
	default:
		return KindServer
	}
}

// IsRetryable reports whether err is a retryable delivery failure.
func IsRetryable(err error) bool {
	var submitErr *Error
	if errors.As(err, &submitErr) {
		return submitErr.Retryable()
	}
	return false
}

// IsPermanent reports whether err is a permanent rejection by the endpoint.
func IsPermanent(err error) bool {
	var submitErr *Error
	return errors.As(err, &submitErr) && submitErr.Kind == KindRejected
}
