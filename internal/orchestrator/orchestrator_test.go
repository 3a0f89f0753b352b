package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/testutil"
)

const (
	startURL    = "POST http://svc/api/scan/start"
	validateURL = "POST http://svc/api/scan/validate-target"
)

// newTestOrchestrator builds an orchestrator over a scriptable
// transport, without persistence. Poll and sweep cadences are slowed
// far past the test horizon unless a test tightens them.
func newTestOrchestrator(t *testing.T, tr *testutil.DummyTransport) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.SweepInterval = time.Hour
	return newTestOrchestratorCfg(t, tr, cfg)
}

func newTestOrchestratorCfg(t *testing.T, tr *testutil.DummyTransport, cfg *Config) *Orchestrator {
	t.Helper()
	logger := &testutil.DummyLogger{}
	c, err := client.New(client.Config{BaseURL: "http://svc/api", RetryBaseDelay: time.Millisecond}, tr, logger)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	o := New(cfg, c, nil, nil, logger)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		o.Close()
		c.Close()
	})
	return o
}

func startResponder() testutil.Responder {
	return testutil.JSONResponse(200, model.StartScanResponse{ScanID: "remote-1", EstimatedDuration: 60})
}

// startRunning creates a scan (validation off) and drives it to
// running.
func startRunning(t *testing.T, o *Orchestrator, tr *testutil.DummyTransport) *model.Scan {
	t.Helper()
	if tr.Responders == nil {
		tr.Responders = map[string]testutil.Responder{}
	}
	tr.Responders[startURL] = startResponder()

	sc, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.0/24"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.StartScan(context.Background(), sc.ID); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	got, err := o.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return got
}

// ─── Create ────────────────────────────────────────────────────────────

func TestCreate_DefaultsToBalancedProfile(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	sc, err := o.Create(context.Background(), CreateRequest{Target: " 192.168.1.0/24 "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sc.Target != "192.168.1.0/24" {
		t.Fatalf("target not trimmed: %q", sc.Target)
	}
	if sc.Status != model.StatusIdle {
		t.Fatalf("new scan status = %s, want idle", sc.Status)
	}
	if sc.Profile != "balanced" {
		t.Fatalf("profile = %q, want balanced", sc.Profile)
	}
	if sc.Settings.TimingTemplate != 3 || sc.Settings.Ports != "1-1024" || !sc.Settings.ServiceDetection {
		t.Fatalf("balanced settings not applied: %+v", sc.Settings)
	}
	if sc.ID == "" || sc.CreatedAt.IsZero() {
		t.Fatal("identity fields not populated")
	}
}

func TestCreate_OverridesWinOverProfile(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	sc, err := o.Create(context.Background(), CreateRequest{
		Target:    "10.0.0.1",
		Profile:   "quick",
		Overrides: model.ScanSettings{Ports: "443", ScriptScan: true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sc.Settings.Ports != "443" || !sc.Settings.ScriptScan {
		t.Fatalf("overrides not applied: %+v", sc.Settings)
	}
	if sc.Settings.TimingTemplate != 4 {
		t.Fatalf("quick defaults lost: %+v", sc.Settings)
	}
}

func TestCreate_EmptyTargetRejected(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	_, err := o.Create(context.Background(), CreateRequest{Target: "   "})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreate_UnknownProfileRejected(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	_, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.1", Profile: "warp"})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreate_PreferenceSuppliesDefaultProfile(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	prefs := o.Preferences()
	prefs.DefaultProfile = "thorough"
	o.SetPreferences(prefs)

	sc, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sc.Profile != "thorough" {
		t.Fatalf("profile = %q, want thorough", sc.Profile)
	}
}

func TestCreate_CopiesCallerMetadata(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	meta := map[string]string{"ticket": "OPS-42"}
	sc, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.1", Metadata: meta})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating the caller's map must not leak into the scan record.
	meta["ticket"] = "OPS-43"
	meta["extra"] = "x"

	got, _ := o.Get(sc.ID)
	if got.Metadata["ticket"] != "OPS-42" || len(got.Metadata) != 1 {
		t.Fatalf("metadata aliased the caller's map: %+v", got.Metadata)
	}
}

// ─── Start ─────────────────────────────────────────────────────────────

func TestStartScan_ReachesRunningAndArmsPoll(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	sc := startRunning(t, o, tr)
	if sc.Status != model.StatusRunning {
		t.Fatalf("status = %s, want running", sc.Status)
	}
	if sc.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}
	if sc.EstimatedEnd == nil {
		t.Fatal("EstimatedEnd not derived from estimated duration")
	}
	if !o.pollArmed(sc.ID) {
		t.Fatal("poll timer should be armed")
	}
}

func TestStartScan_ValidationFailureFailsScan(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{Responders: map[string]testutil.Responder{
		validateURL: testutil.JSONResponse(200, model.ValidateTargetResponse{Valid: false, Message: "unroutable"}),
		startURL:    startResponder(),
	}}
	o := newTestOrchestratorWithValidator(t, tr)

	sc, err := o.Create(context.Background(), CreateRequest{
		Target:  "203.0.113.9",
		Options: model.ScanOptions{ValidateTarget: true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = o.StartScan(context.Background(), sc.ID)
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if len(got.Errors) == 0 {
		t.Fatal("expected a validation diagnostic")
	}
	for _, req := range tr.Requests {
		if req.Method == "POST" && req.URL == "http://svc/api/scan/start" {
			t.Fatal("start must not be sent after failed validation")
		}
	}
}

func TestStartScan_ForceTurnsRejectionIntoWarning(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{Responders: map[string]testutil.Responder{
		validateURL: testutil.JSONResponse(200, model.ValidateTargetResponse{Valid: false, Message: "unroutable"}),
		startURL:    startResponder(),
	}}
	o := newTestOrchestratorWithValidator(t, tr)

	sc, err := o.Create(context.Background(), CreateRequest{
		Target:  "203.0.113.9",
		Options: model.ScanOptions{ValidateTarget: true, Force: true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.StartScan(context.Background(), sc.ID); err != nil {
		t.Fatalf("forced start should succeed, got %v", err)
	}

	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}
	if len(got.Warnings) == 0 {
		t.Fatal("expected the rejection recorded as a warning")
	}
}

func TestStartScan_RemoteFailureFailsScan(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{Responders: map[string]testutil.Responder{
		startURL: testutil.JSONResponse(500, map[string]string{"error": "engine down"}),
	}}
	o := newTestOrchestrator(t, tr)

	sc, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.StartScan(context.Background(), sc.ID); err == nil {
		t.Fatal("expected start error")
	}
	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestStartScan_OnlyFromIdle(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	sc := startRunning(t, o, tr)
	err := o.StartScan(context.Background(), sc.ID)
	var pErr *model.PreconditionError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

// ─── Pause / Resume / Stop / Delete ────────────────────────────────────

func TestPauseAndResume(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)
	sc := startRunning(t, o, tr)

	if err := o.Pause(context.Background(), sc.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}

	// Pausing twice violates the precondition.
	var pErr *model.PreconditionError
	if err := o.Pause(context.Background(), sc.ID); !errors.As(err, &pErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}

	if err := o.Resume(context.Background(), sc.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = o.Get(sc.ID)
	if got.Status != model.StatusRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}
}

func TestPause_RemoteFailureKeepsLocalState(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)
	sc := startRunning(t, o, tr)

	tr.Responders["POST http://svc/api/scan/pause/"+sc.ID] = testutil.JSONResponse(500, map[string]string{"error": "nope"})

	if err := o.Pause(context.Background(), sc.ID); err == nil {
		t.Fatal("expected pause error")
	}
	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusRunning {
		t.Fatalf("status = %s, want running after failed pause", got.Status)
	}
	if len(got.Errors) == 0 {
		t.Fatal("expected a recoverable diagnostic")
	}
}

func TestStop_CancelsAndDisarmsPoll(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)
	sc := startRunning(t, o, tr)

	if err := o.Stop(context.Background(), sc.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.CompletedAt == nil || got.Duration <= 0 {
		t.Fatalf("timing not recorded: completedAt=%v duration=%v", got.CompletedAt, got.Duration)
	}
	if o.pollArmed(sc.ID) {
		t.Fatal("poll timer should be disarmed after stop")
	}
}

func TestStop_RequiresActiveScan(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})

	sc, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var pErr *model.PreconditionError
	if err := o.Stop(context.Background(), sc.ID); !errors.As(err, &pErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestStop_PassesThroughStopping(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	events, cancel := o.Subscribe()
	defer cancel()

	sc := startRunning(t, o, tr)
	if err := o.Stop(context.Background(), sc.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var seen []model.ScanStatus
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Scan == nil || ev.Scan.ID != sc.ID {
				continue
			}
			seen = append(seen, ev.Scan.Status)
			if ev.Scan.Status == model.StatusCancelled {
				if len(seen) < 2 || seen[len(seen)-2] != model.StatusStopping {
					t.Fatalf("cancelled not preceded by stopping: %v", seen)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for cancelled, saw %v", seen)
		}
	}
}

func TestStop_RemoteFailureRollsBack(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)
	sc := startRunning(t, o, tr)

	tr.Responders["POST http://svc/api/scan/stop/"+sc.ID] = testutil.JSONResponse(500, map[string]string{"error": "nope"})

	if err := o.Stop(context.Background(), sc.ID); err == nil {
		t.Fatal("expected stop error")
	}
	got, _ := o.Get(sc.ID)
	if got.Status != model.StatusRunning {
		t.Fatalf("status = %s, want running after failed stop", got.Status)
	}
	if !o.pollArmed(sc.ID) {
		t.Fatal("poll timer should stay armed after failed stop")
	}
	if len(got.Errors) == 0 {
		t.Fatal("expected a recoverable diagnostic")
	}

	// The rollback left the scan stoppable; a retry goes through.
	tr.Responders["POST http://svc/api/scan/stop/"+sc.ID] = testutil.JSONResponse(200, map[string]string{"status": "stopped"})
	if err := o.Stop(context.Background(), sc.ID); err != nil {
		t.Fatalf("retry Stop: %v", err)
	}
	got, _ = o.Get(sc.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled after retry", got.Status)
	}
}

func TestDelete_StopsAndMovesToHistory(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)
	sc := startRunning(t, o, tr)

	if err := o.Delete(context.Background(), sc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(o.List()) != 0 {
		t.Fatal("scan should leave the active collection")
	}
	hist := o.History(0)
	if len(hist) != 1 || hist[0].ID != sc.ID {
		t.Fatalf("scan should land in history, got %+v", hist)
	}
	// Get still resolves historical scans.
	if _, err := o.Get(sc.ID); err != nil {
		t.Fatalf("Get from history: %v", err)
	}
}

func TestOperationsOnUnknownScan(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &testutil.DummyTransport{})
	ctx := context.Background()

	if err := o.StartScan(ctx, "ghost"); !errors.Is(err, ErrScanNotFound) {
		t.Fatalf("StartScan: %v", err)
	}
	if err := o.Pause(ctx, "ghost"); !errors.Is(err, ErrScanNotFound) {
		t.Fatalf("Pause: %v", err)
	}
	if err := o.Stop(ctx, "ghost"); !errors.Is(err, ErrScanNotFound) {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := o.Get("ghost"); !errors.Is(err, ErrScanNotFound) {
		t.Fatalf("Get: %v", err)
	}
}

// ─── Listing and events ────────────────────────────────────────────────

func TestList_FiltersByStatus(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	running := startRunning(t, o, tr)
	if _, err := o.Create(context.Background(), CreateRequest{Target: "10.0.0.2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all := o.List()
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	onlyRunning := o.List(model.StatusRunning)
	if len(onlyRunning) != 1 || onlyRunning[0].ID != running.ID {
		t.Fatalf("running filter failed: %+v", onlyRunning)
	}
}

func TestSubscribe_ObservesLifecycle(t *testing.T) {
	t.Parallel()
	tr := &testutil.DummyTransport{}
	o := newTestOrchestrator(t, tr)

	events, cancel := o.Subscribe()
	defer cancel()

	sc := startRunning(t, o, tr)

	var seen []EventType
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			if ev.Scan != nil && ev.Scan.ID == sc.ID {
				seen = append(seen, ev.Type)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	if seen[0] != EventCreated {
		t.Fatalf("first event = %s, want created", seen[0])
	}
	if seen[1] != EventUpdated {
		t.Fatalf("second event = %s, want updated", seen[1])
	}
}

// newTestOrchestratorWithValidator wires a real validator over the same
// transport, for start flows that validate.
func newTestOrchestratorWithValidator(t *testing.T, tr *testutil.DummyTransport) *Orchestrator {
	t.Helper()
	logger := &testutil.DummyLogger{}
	c, err := client.New(client.Config{BaseURL: "http://svc/api", RetryBaseDelay: time.Millisecond}, tr, logger)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.SweepInterval = time.Hour
	o := New(cfg, c, newValidator(t, c), nil, logger)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		o.Close()
		c.Close()
	})
	return o
}
