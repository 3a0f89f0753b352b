package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/store"
	"github.com/Kelll31/aptscan/internal/testutil"
)

func TestSweepOnce_MigratesOldTerminalScans(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	fresh := startRunning(t, o, tr)
	done := startRunning(t, o, tr)
	if err := o.Complete(done.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Age the finished scan past the retention window.
	o.mu.Lock()
	o.scans[done.ID].LastUpdated = time.Now().Add(-25 * time.Hour)
	o.mu.Unlock()

	o.sweepOnce(context.Background())

	if _, ok := findByID(o.List(), done.ID); ok {
		t.Fatal("aged terminal scan should leave the active collection")
	}
	if _, ok := findByID(o.List(), fresh.ID); !ok {
		t.Fatal("running scan must survive the sweep")
	}
	hist := o.History(0)
	if len(hist) != 1 || hist[0].ID != done.ID {
		t.Fatalf("aged scan should land in history, got %d entries", len(hist))
	}
}

func TestSweepOnce_KeepsRecentTerminalScans(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	done := startRunning(t, o, tr)
	if err := o.Complete(done.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	o.sweepOnce(context.Background())

	if _, ok := findByID(o.List(), done.ID); !ok {
		t.Fatal("recently finished scan must stay active for quick re-inspection")
	}
}

func TestSweepOnce_TrimsHistoryToCapacity(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.HistoryCapacity = 3
	o := newTestOrchestratorCfg(t, tr, cfg)

	base := time.Now().Add(-time.Hour)
	o.mu.Lock()
	for i := 0; i < 5; i++ {
		o.history = append(o.history, &model.Scan{
			ID:        fmt.Sprintf("h-%d", i),
			Status:    model.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	o.mu.Unlock()

	o.sweepOnce(context.Background())

	hist := o.History(0)
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	// The two oldest-created entries were evicted.
	for _, sc := range hist {
		if sc.ID == "h-0" || sc.ID == "h-1" {
			t.Fatalf("oldest entry %s should have been evicted", sc.ID)
		}
	}
}

func TestSweepOnce_EvictsStaleValidations(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{Responders: map[string]testutil.Responder{
		"POST http://svc/api/scan/validate-target": testutil.JSONResponse(200, model.ValidateTargetResponse{Valid: true, Confidence: 0.9}),
	}}
	o := newTestOrchestratorWithValidator(t, tr)

	if _, err := o.validator.Validate(context.Background(), "host-a", false); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// The verdict is fresh, so a sweep keeps it.
	o.sweepOnce(context.Background())
	if o.validator.CacheSize() != 1 {
		t.Fatalf("fresh verdict evicted, cache size = %d", o.validator.CacheSize())
	}
}

func TestCloseAndRestart_RestoresStateAndRearmsPolls(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	logger := &testutil.DummyLogger{}
	tr := &testutil.DummyTransport{}

	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.SweepInterval = time.Hour

	// First session: create a running scan and a preference, then close.
	st1, err := store.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c1, err := client.New(client.Config{BaseURL: "http://svc/api", RetryBaseDelay: time.Millisecond}, tr, logger)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	o1 := New(cfg, c1, nil, st1, logger)
	if err := o1.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sc := startRunning(t, o1, tr)
	o1.SetPreferences(store.Preferences{DefaultProfile: "quick"})
	if err := o1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	st1.Close()
	c1.Close()

	// Second session restores the snapshot and re-arms the poll timer.
	st2, err := store.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { st2.Close() })
	c2, err := client.New(client.Config{BaseURL: "http://svc/api", RetryBaseDelay: time.Millisecond}, tr, logger)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { c2.Close() })
	o2 := New(cfg, c2, nil, st2, logger)
	if err := o2.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	t.Cleanup(func() { o2.Close() })

	got, err := o2.Get(sc.ID)
	if err != nil {
		t.Fatalf("restored scan missing: %v", err)
	}
	if got.Status != model.StatusRunning {
		t.Fatalf("restored status = %s, want running", got.Status)
	}
	if !o2.pollArmed(sc.ID) {
		t.Fatal("poll timer should be re-armed for restored active scan")
	}
	if o2.Preferences().DefaultProfile != "quick" {
		t.Fatalf("preferences not restored: %+v", o2.Preferences())
	}
}

func findByID(scans []*model.Scan, id string) (*model.Scan, bool) {
	for _, sc := range scans {
		if sc.ID == id {
			return sc, true
		}
	}
	return nil, false
}
