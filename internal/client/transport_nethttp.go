package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Kelll31/aptscan/internal/logging"
)

// NetHTTPTransport is the net/http backed production transport.
type NetHTTPTransport struct {
	client *http.Client
	logger logging.Logger
}

// NewNetHTTPTransport wraps httpClient (a default one is constructed
// when nil). The wrapped client carries no timeout of its own; the
// resilient layer owns deadlines through the request context.
func NewNetHTTPTransport(logger logging.Logger, httpClient *http.Client) *NetHTTPTransport {
	componentLogger := logger.With(logging.Field{Key: "component", Value: "nethttp"})
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &NetHTTPTransport{
		client: httpClient,
		logger: componentLogger,
	}
}

// Do executes the request with net/http.
func (t *NetHTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	method := strings.ToUpper(req.Method)

	t.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: req.URL})

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		Request:    req,
		Body:       body,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
	}, nil
}

func (t *NetHTTPTransport) Close() error {
	t.logger.Info("closing nethttp transport")
	t.client.CloseIdleConnections()
	return nil
}
