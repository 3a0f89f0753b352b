package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/testutil"
)

// newPushServer runs a websocket endpoint that sends each payload in
// messages to every client that connects, then holds the connection
// open.
func newPushServer(t *testing.T, messages []string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForEvents(t *testing.T, rec *testutil.EventRecorder, n int) []model.PushEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := rec.Events(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(rec.Events()))
	return nil
}

func TestListener_DeliversDecodedEvents(t *testing.T) {
	t.Parallel()
	url := newPushServer(t, []string{
		`{"scan_id":"s-1","progress":40,"status":"running","phase":"port_scan"}`,
		`{"scan_id":"s-1","progress":80,"status":"running","phase":"vuln_scan"}`,
	})

	rec := &testutil.EventRecorder{}
	l := NewListener(url, rec.Record, &testutil.DummyLogger{})
	l.Start(context.Background())
	t.Cleanup(l.Stop)

	evs := waitForEvents(t, rec, 2)
	if evs[0].ScanID != "s-1" || evs[0].Progress != 40 {
		t.Fatalf("first event wrong: %+v", evs[0])
	}
	if evs[1].Progress != 80 || evs[1].Phase != "vuln_scan" {
		t.Fatalf("second event wrong: %+v", evs[1])
	}
}

func TestListener_SkipsMalformedAndAnonymousEvents(t *testing.T) {
	t.Parallel()
	url := newPushServer(t, []string{
		`this is not json`,
		`{"progress":10,"status":"running"}`,
		`{"scan_id":"s-2","progress":5,"status":"running"}`,
	})

	rec := &testutil.EventRecorder{}
	l := NewListener(url, rec.Record, &testutil.DummyLogger{})
	l.Start(context.Background())
	t.Cleanup(l.Stop)

	evs := waitForEvents(t, rec, 1)
	if len(evs) != 1 || evs[0].ScanID != "s-2" {
		t.Fatalf("expected only the well-formed event, got %+v", evs)
	}
}

func TestListener_StopWhileDialFails(t *testing.T) {
	t.Parallel()
	// Nothing listens here; the listener sits in its dial/backoff loop.
	l := NewListener("ws://127.0.0.1:1/ws/updates", func(model.PushEvent) {}, &testutil.DummyLogger{})
	l.Start(context.Background())

	finished := make(chan struct{})
	go func() {
		l.Stop()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while dialing")
	}
}

func TestListener_StartTwiceIsNoOp(t *testing.T) {
	t.Parallel()
	url := newPushServer(t, []string{`{"scan_id":"s-3","progress":1,"status":"running"}`})

	rec := &testutil.EventRecorder{}
	l := NewListener(url, rec.Record, &testutil.DummyLogger{})
	l.Start(context.Background())
	l.Start(context.Background())
	t.Cleanup(l.Stop)

	waitForEvents(t, rec, 1)
	// A brief settle window: a second connection would duplicate the event.
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.Events()); n != 1 {
		t.Fatalf("expected exactly 1 event, got %d", n)
	}
}
