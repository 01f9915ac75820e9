package punish

import (
	"errors"
	"fmt"
	"time"
)

// Failure taxonomy for punishment and cleanup API calls. Every
// category is fully handled inside the pipeline; none reaches a user.
var (
	// ErrPermissionDenied: the system lacks the capability. Settles
	// without retry.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound: the tenant or target vanished mid-flight. Settles
	// gracefully.
	ErrNotFound = errors.New("not found")
)

// APIError is a platform REST failure with enough detail to classify.
type APIError struct {
	Status     int
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d", e.Status)
}

// Transient reports whether the call should be retried with backoff:
// upstream throttling, server-side failures, and transport errors
// that never produced a status.
func (e *APIError) Transient() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// ErrorClass buckets an executor error for the retry loops here and
// in the cleanup coordinator.
type ErrorClass uint8

const (
	// ClassPermanent: abort immediately, log, never retry.
	ClassPermanent ErrorClass = iota
	// ClassDenied: the system lacks the capability; settle, no retry.
	ClassDenied
	// ClassNotFound: target gone; settle gracefully.
	ClassNotFound
	// ClassTransient: 429, 5xx, or transport failure; bounded retry
	// with backoff.
	ClassTransient
)

// Classify buckets err and surfaces any server-provided retry-after.
func Classify(err error) (ErrorClass, time.Duration) {
	if errors.Is(err, ErrPermissionDenied) {
		return ClassDenied, 0
	}
	if errors.Is(err, ErrNotFound) {
		return ClassNotFound, 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 403:
			return ClassDenied, 0
		case apiErr.Status == 404:
			return ClassNotFound, 0
		case apiErr.Transient():
			return ClassTransient, apiErr.RetryAfter
		}
	}
	return ClassPermanent, 0
}
