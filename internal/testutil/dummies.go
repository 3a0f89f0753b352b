// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Transport ─────────────────────────────────────────────────────────

// Responder produces a response for a request. Returning a non-nil error
// simulates a transport-level failure.
type Responder func(req *client.Request) (*client.Response, error)

// DummyTransport implements client.Transport with scriptable behavior.
// Responders are matched by "METHOD path"; unmatched requests get body
// "ok" with status 200. Set ResponseDelay to slow every request down,
// and Fail to make the whole transport error out.
type DummyTransport struct {
	ResponseDelay time.Duration
	Fail          error
	Responders    map[string]Responder

	mu       sync.Mutex
	Requests []*client.Request
}

func (d *DummyTransport) Do(ctx context.Context, req *client.Request) (*client.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.Fail != nil {
		return nil, d.Fail
	}
	if r, ok := d.Responders[req.Method+" "+req.URL]; ok {
		return r(req)
	}
	return &client.Response{
		Request:    req,
		Body:       []byte(`"ok"`),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyTransport) Close() error { return nil }

// RequestCount returns the number of requests the transport has seen.
func (d *DummyTransport) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// LastRequest returns the most recent request, or nil.
func (d *DummyTransport) LastRequest() *client.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Requests) == 0 {
		return nil
	}
	return d.Requests[len(d.Requests)-1]
}

// JSONResponse builds a Responder that marshals v with the given status.
func JSONResponse(status int, v any) Responder {
	return func(req *client.Request) (*client.Response, error) {
		body, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &client.Response{
			Request:    req,
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			Body:       body,
			StatusCode: status,
			FetchedAt:  time.Now(),
		}, nil
	}
}

// FailTimes builds a Responder that fails n times with err, then
// delegates to next on every later call.
func FailTimes(n int, err error, next Responder) Responder {
	var mu sync.Mutex
	remaining := n
	return func(req *client.Request) (*client.Response, error) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()
		if fail {
			return nil, err
		}
		return next(req)
	}
}

// ─── Push events ───────────────────────────────────────────────────────

// EventRecorder collects push events, usable as a push.Sink.
type EventRecorder struct {
	mu     sync.Mutex
	events []model.PushEvent
}

func (r *EventRecorder) Record(ev model.PushEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []model.PushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PushEvent(nil), r.events...)
}
