package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleScan(id string, status model.ScanStatus, createdAt time.Time) *model.Scan {
	return &model.Scan{
		ID:        id,
		Target:    "10.0.0.1",
		Type:      "network",
		Profile:   "balanced",
		Status:    status,
		Progress:  42,
		CreatedAt: createdAt,
		Results: model.ScanResults{
			OpenPorts: []model.Port{{Number: 22, Protocol: "tcp", State: "open"}},
		},
	}
}

func TestLoad_EmptyStoreReturnsErrNoSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	in := &Snapshot{
		Active:  []*model.Scan{sampleScan("a-1", model.StatusRunning, now)},
		History: []*model.Scan{sampleScan("h-1", model.StatusCompleted, now.Add(-time.Hour))},
		Preferences: Preferences{
			DefaultProfile: "thorough",
			ShowAdvanced:   true,
		},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Active) != 1 || out.Active[0].ID != "a-1" {
		t.Fatalf("active round trip failed: %+v", out.Active)
	}
	if out.Active[0].Status != model.StatusRunning || out.Active[0].Progress != 42 {
		t.Fatalf("scan fields lost: %+v", out.Active[0])
	}
	if len(out.Active[0].Results.OpenPorts) != 1 {
		t.Fatal("results lost in round trip")
	}
	if len(out.History) != 1 || out.History[0].ID != "h-1" {
		t.Fatalf("history round trip failed: %+v", out.History)
	}
	if out.Preferences.DefaultProfile != "thorough" || !out.Preferences.ShowAdvanced {
		t.Fatalf("preferences round trip failed: %+v", out.Preferences)
	}
	if out.SavedAt.IsZero() {
		t.Fatal("SavedAt not populated")
	}
}

func TestSave_ReplacesPreviousSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.Save(ctx, &Snapshot{Active: []*model.Scan{sampleScan("old", model.StatusRunning, now)}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.Save(ctx, &Snapshot{Active: []*model.Scan{sampleScan("new", model.StatusPaused, now)}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Active) != 1 || out.Active[0].ID != "new" {
		t.Fatalf("snapshot not replaced: %+v", out.Active)
	}
}

func TestLoad_SkipsCorruptRowsAndRepairsStatus(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.Save(ctx, &Snapshot{Active: []*model.Scan{sampleScan("ok", model.StatusRunning, now)}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Corrupt one row and give another an unknown status, simulating a
	// snapshot written by a different build.
	if _, err := s.db.Exec(`INSERT INTO scans (id, kind, created_at, payload) VALUES ('junk', 'active', 0, 'not json')`); err != nil {
		t.Fatalf("insert junk: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO scans (id, kind, created_at, payload) VALUES ('odd', 'active', 1, '{"id":"odd","status":"warp-speed"}')`); err != nil {
		t.Fatalf("insert odd: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Active) != 2 {
		t.Fatalf("expected 2 decodable scans, got %d", len(out.Active))
	}
	for _, sc := range out.Active {
		if sc.ID == "odd" && sc.Status != model.StatusIdle {
			t.Fatalf("unknown status should reset to idle, got %s", sc.Status)
		}
	}
}
