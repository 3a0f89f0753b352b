package orchestrator

import (
	"testing"
	"time"

	"github.com/Kelll31/aptscan/internal/model"
)

func terminalScan(id string, status model.ScanStatus, createdAgo, duration time.Duration, now time.Time) *model.Scan {
	return &model.Scan{
		ID:        id,
		Status:    status,
		CreatedAt: now.Add(-createdAgo),
		Duration:  duration,
	}
}

func TestComputeStats_CountsAndRates(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	active := map[string]*model.Scan{
		"r-1": {
			ID:        "r-1",
			Status:    model.StatusRunning,
			CreatedAt: now.Add(-time.Hour),
			Results: model.ScanResults{
				Hosts:     []model.Host{{Address: "10.0.0.1"}},
				OpenPorts: []model.Port{{Number: 22}, {Number: 80}},
				Services:  []model.Service{{Name: "ssh", Port: 22}},
			},
			Stats: model.ScanStats{Findings: model.SeverityCounts{Critical: 1, Low: 2}},
		},
	}
	history := []*model.Scan{
		terminalScan("c-1", model.StatusCompleted, 2*24*time.Hour, 10*time.Minute, now),
		terminalScan("c-2", model.StatusCompleted, 10*24*time.Hour, 20*time.Minute, now),
		terminalScan("f-1", model.StatusFailed, 40*24*time.Hour, 0, now),
		terminalScan("x-1", model.StatusCancelled, time.Hour, 0, now),
	}

	stats := computeStats(active, history, now)

	if stats.Total != 5 {
		t.Fatalf("total = %d, want 5", stats.Total)
	}
	if stats.ByStatus[model.StatusCompleted] != 2 || stats.ByStatus[model.StatusRunning] != 1 {
		t.Fatalf("by-status wrong: %v", stats.ByStatus)
	}
	if stats.Today != 2 {
		t.Fatalf("today = %d, want 2", stats.Today)
	}
	if stats.ThisWeek != 3 {
		t.Fatalf("this week = %d, want 3", stats.ThisWeek)
	}
	if stats.ThisMonth != 4 {
		t.Fatalf("this month = %d, want 4", stats.ThisMonth)
	}
	if stats.AverageDuration != 15*time.Minute {
		t.Fatalf("average duration = %v, want 15m", stats.AverageDuration)
	}
	// Two completed, one failed; the cancelled scan counts neither way.
	want := 2.0 / 3.0
	if diff := stats.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("success rate = %v, want %v", stats.SuccessRate, want)
	}
	if stats.TotalFindings.Critical != 1 || stats.TotalFindings.Low != 2 {
		t.Fatalf("findings wrong: %+v", stats.TotalFindings)
	}
	if stats.TotalHosts != 1 || stats.TotalOpenPorts != 2 || stats.TotalServices != 1 {
		t.Fatalf("inventory wrong: hosts=%d ports=%d services=%d", stats.TotalHosts, stats.TotalOpenPorts, stats.TotalServices)
	}
}

func TestComputeStats_EmptyCollections(t *testing.T) {
	t.Parallel()
	stats := computeStats(map[string]*model.Scan{}, nil, time.Now())
	if stats.Total != 0 || stats.SuccessRate != 0 || stats.AverageDuration != 0 {
		t.Fatalf("zero state wrong: %+v", stats)
	}
}
