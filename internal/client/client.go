package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// Client is the resilient request layer every other component calls
// through. It wraps a Transport with response caching, a fixed-window
// rate limiter, retry with exponential backoff, per-request timeouts
// and bulk cancellation. It knows nothing about scans.
type Client struct {
	cfg       Config
	transport Transport
	logger    logging.Logger

	cache   *responseCache
	limiter *rateWindow

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	metricsMu sync.Mutex
	metrics   Metrics
}

// Metrics are the running request counters, updated on every call.
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	CacheHits          int64
	CumulativeLatency  time.Duration
}

// New builds a Client. When transport is nil the configured backend is
// constructed through the backend registry.
func New(cfg Config, transport Transport, logger logging.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NewStdoutLogger("client")
	}
	if transport == nil {
		t, err := NewTransport(cfg, logger)
		if err != nil {
			return nil, err
		}
		transport = t
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		logger:    logger.With(logging.Field{Key: "component", Value: "client"}),
		cache:     newResponseCache(),
		limiter:   newRateWindow(cfg.RateLimit, cfg.RateWindow),
		inflight:  make(map[string]context.CancelFunc),
	}, nil
}

// Request performs one call against endpoint (a path under BaseURL).
// Cached reads short-circuit; everything else consumes rate budget and
// runs through the retry loop.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	fullURL := joinURL(c.cfg.BaseURL, endpoint)
	normalized := normalizeURL(fullURL)
	key := cacheKey(method, normalized, opts.Body)
	now := time.Now()

	cacheable := method == http.MethodGet && !opts.NoCache
	if cacheable {
		if resp, ok := c.cache.get(key, now); ok {
			c.metricsMu.Lock()
			c.metrics.CacheHits++
			c.metricsMu.Unlock()
			cp := *resp
			cp.FromCache = true
			return &cp, nil
		}
	}
	if method != http.MethodGet {
		// A write makes any cached read of the same URL stale.
		c.cache.invalidateURL(normalized)
	}

	if wait, ok := c.limiter.allow(now); !ok {
		return nil, &model.RateLimitError{RetryAfter: wait}
	}

	resp, err := c.doWithRetry(ctx, method, fullURL, opts)
	if err != nil {
		return nil, err
	}

	if cacheable {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = c.cfg.CacheTTL
		}
		c.cache.put(key, resp, ttl, time.Now())
	}
	return resp, nil
}

// doWithRetry runs the attempt loop. Client errors (4xx), timeouts and
// context cancellation surface immediately; transient failures are
// retried with baseDelay*2^(attempt-1) between attempts.
func (c *Client) doWithRetry(ctx context.Context, method, fullURL string, opts RequestOptions) (*Response, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	headers := make(http.Header)
	for k, vs := range opts.Headers {
		headers[k] = append([]string(nil), vs...)
	}
	if headers.Get("Accept") == "" {
		headers.Set("Accept", opts.ResponseType.accept())
	}
	if len(opts.Body) > 0 && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryBaseDelay * (1 << (attempt - 2))
			c.logger.Debug("retrying request",
				logging.Field{Key: "url", Value: fullURL},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "delay", Value: delay.String()})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.attempt(ctx, method, fullURL, headers, opts.Body, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		c.logger.Warn("request attempt failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: fullURL},
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "error", Value: err.Error()})
	}
	return nil, lastErr
}

// attempt performs a single timed exchange, tracking its cancel func so
// CancelAll can abort it.
func (c *Client) attempt(ctx context.Context, method, fullURL string, headers http.Header, body []byte, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	token := uuid.New().String()
	c.inflightMu.Lock()
	c.inflight[token] = cancel
	c.inflightMu.Unlock()
	defer func() {
		cancel()
		c.inflightMu.Lock()
		delete(c.inflight, token)
		c.inflightMu.Unlock()
	}()

	start := time.Now()
	resp, err := c.transport.Do(attemptCtx, &Request{
		Method:  method,
		URL:     fullURL,
		Headers: headers,
		Body:    body,
	})
	latency := time.Since(start)

	c.metricsMu.Lock()
	c.metrics.TotalRequests++
	c.metrics.CumulativeLatency += latency
	if err != nil || resp == nil || resp.StatusCode >= 400 {
		c.metrics.FailedRequests++
	} else {
		c.metrics.SuccessfulRequests++
	}
	c.metricsMu.Unlock()

	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.Canceled) {
			return nil, &model.TimeoutError{Endpoint: fullURL, Timeout: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.NetworkError{Endpoint: fullURL, Err: err}
	}
	if resp == nil {
		return nil, &model.NetworkError{Endpoint: fullURL, Err: errors.New("transport returned nil response")}
	}
	if resp.StatusCode >= 400 {
		return nil, &model.APIError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return resp, nil
}

// retryable reports whether the failure is transient. Caller-caused
// errors, timeouts and rate limiting are surfaced as-is.
func retryable(err error) bool {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.IsClientError()
	}
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Get issues a cached JSON GET.
func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
}

// Post issues a JSON POST with body marshalled from v (nil for empty).
func (c *Client) Post(ctx context.Context, endpoint string, v any) (*Response, error) {
	return c.write(ctx, http.MethodPost, endpoint, v)
}

// Put issues a JSON PUT.
func (c *Client) Put(ctx context.Context, endpoint string, v any) (*Response, error) {
	return c.write(ctx, http.MethodPut, endpoint, v)
}

// Patch issues a JSON PATCH.
func (c *Client) Patch(ctx context.Context, endpoint string, v any) (*Response, error) {
	return c.write(ctx, http.MethodPatch, endpoint, v)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodDelete})
}

func (c *Client) write(ctx context.Context, method, endpoint string, v any) (*Response, error) {
	var body []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = b
	}
	return c.Request(ctx, endpoint, RequestOptions{Method: method, Body: body})
}

// CancelAll aborts every in-flight request. Used for application-wide
// teardown (navigation away, logout).
func (c *Client) CancelAll() {
	c.inflightMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.inflight))
	for token, cancel := range c.inflight {
		cancels = append(cancels, cancel)
		delete(c.inflight, token)
	}
	c.inflightMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	c.logger.Info("cancelled in-flight requests", logging.Field{Key: "count", Value: len(cancels)})
}

// Metrics returns a snapshot of the running counters.
func (c *Client) Metrics() Metrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}

// Close cancels outstanding work and closes the transport.
func (c *Client) Close() error {
	c.CancelAll()
	return c.transport.Close()
}

func joinURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
