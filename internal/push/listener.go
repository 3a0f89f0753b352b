// Package push receives unsolicited scan progress events over a
// websocket and feeds them into the orchestrator's update path. Push
// and poll are deliberately redundant: both funnel into the same
// idempotent merge, so losing either source costs nothing but latency.
package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// Sink consumes one decoded push event.
type Sink func(model.PushEvent)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Listener maintains a websocket subscription to the service's update
// endpoint, reconnecting with capped backoff until stopped.
type Listener struct {
	url    string
	sink   Sink
	logger logging.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewListener creates a Listener for the given ws:// or wss:// URL.
func NewListener(url string, sink Sink, logger logging.Logger) *Listener {
	if logger == nil {
		logger = logging.NewStdoutLogger("push")
	}
	return &Listener{
		url:    url,
		sink:   sink,
		logger: logger.With(logging.Field{Key: "component", Value: "push"}),
		dialer: websocket.DefaultDialer,
	}
}

// Start begins listening in the background. Calling Start twice is a
// no-op until Stop.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true

	go l.run(runCtx)
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Warn("push channel dial failed",
				logging.Field{Key: "url", Value: l.url},
				logging.Field{Key: "error", Value: err.Error()},
				logging.Field{Key: "retry_in", Value: backoff.String()})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		l.logger.Info("push channel connected", logging.Field{Key: "url", Value: l.url})
		backoff = reconnectBase

		// Close the connection when ctx ends so ReadMessage unblocks.
		connDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-connDone:
			}
		}()

		l.readLoop(conn)
		close(connDone)
		conn.Close()
	}
}

func (l *Listener) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.logger.Warn("push channel read ended", logging.Field{Key: "error", Value: err.Error()})
			return
		}
		var ev model.PushEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			l.logger.Warn("dropping undecodable push event", logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		if ev.ScanID == "" {
			continue
		}
		if l.sink != nil {
			l.sink(ev)
		}
	}
}

// Stop tears the subscription down and waits for the read loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.started = false
	l.mu.Unlock()

	cancel()
	<-done
}
