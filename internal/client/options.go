package client

import (
	"net/http"
	"time"
)

// ResponseType selects how the caller wants the body negotiated.
type ResponseType string

const (
	ResponseJSON   ResponseType = "json"
	ResponseText   ResponseType = "text"
	ResponseBlob   ResponseType = "blob"
	ResponseBuffer ResponseType = "buffer"
)

// accept returns the Accept header value for the response type.
func (t ResponseType) accept() string {
	switch t {
	case ResponseText:
		return "text/plain"
	case ResponseBlob:
		return "application/octet-stream"
	case ResponseBuffer:
		return "*/*"
	default:
		return "application/json"
	}
}

// RequestOptions tune one call through the Client. The zero value is a
// cached JSON GET with the configured defaults.
type RequestOptions struct {
	Method       string
	Body         []byte
	Headers      http.Header
	ResponseType ResponseType

	// NoCache opts an idempotent read out of the response cache.
	NoCache bool

	// CacheTTL overrides the configured TTL for this response.
	CacheTTL time.Duration

	// Timeout overrides the configured per-attempt timeout.
	Timeout time.Duration

	// MaxAttempts overrides the configured attempt budget (1 = no retry).
	MaxAttempts int
}
