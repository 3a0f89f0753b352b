package model

import (
	"fmt"
	"time"
)

// The error kinds surfaced by the request and orchestration layers.
// Each is a distinct type so callers can branch on cause with
// errors.As.

// ValidationError reports malformed caller-supplied input. Never
// retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// PreconditionError reports an operation requested against a scan that
// is not in a legal source state. The scan is left unchanged.
type PreconditionError struct {
	Op     string
	ScanID string
	Status ScanStatus
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s scan %s in status %q", e.Op, e.ScanID, e.Status)
}

// APIError is a non-success response from the remote service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether the failure is caller-caused (4xx) and
// therefore must not be retried.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// TimeoutError reports that the cancellation token fired before a
// response arrived. Distinct from NetworkError so callers can decide
// whether to retry themselves; the client never retries it.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.Endpoint, e.Timeout)
}

// RateLimitError reports local rate-budget exhaustion before any
// network attempt. RetryAfter is the remaining window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Millisecond))
}

// NetworkError is a transport failure with no response.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
