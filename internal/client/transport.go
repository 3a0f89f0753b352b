package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Transport executes one HTTP exchange. The resilient Client layers
// caching, rate limiting, retry and cancellation on top; transports
// stay dumb so the offline simulator is just another backend picked by
// configuration, never a branch inside request logic.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// Request is the transport-level request shape.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is the transport-level response shape.
type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time

	// FromCache is set by the Client when the response was served
	// without a network call.
	FromCache bool
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
