package orchestrator

import (
	"time"

	"github.com/Kelll31/aptscan/internal/model"
)

// Statistics are aggregate counters derived over the active collection
// plus history. They are recomputed on demand, never stored
// authoritatively.
type Statistics struct {
	Total    int                      `json:"total"`
	ByStatus map[model.ScanStatus]int `json:"by_status"`

	Today     int `json:"today"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`

	// AverageDuration is the mean over completed scans.
	AverageDuration time.Duration `json:"average_duration"`

	// SuccessRate is completed / (completed + failed + timeout) over
	// finished scans; cancelled scans do not count either way.
	SuccessRate float64 `json:"success_rate"`

	TotalFindings  model.SeverityCounts `json:"total_findings"`
	TotalHosts     int                  `json:"total_hosts"`
	TotalServices  int                  `json:"total_services"`
	TotalOpenPorts int                  `json:"total_open_ports"`
}

// Stats computes the aggregate statistics snapshot.
func (o *Orchestrator) Stats() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return computeStats(o.scans, o.history, time.Now())
}

func computeStats(active map[string]*model.Scan, history []*model.Scan, now time.Time) Statistics {
	stats := Statistics{ByStatus: make(map[model.ScanStatus]int)}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := now.Add(-7 * 24 * time.Hour)
	monthStart := now.Add(-30 * 24 * time.Hour)

	var (
		completedDur   time.Duration
		completedCount int
		failedCount    int
	)

	tally := func(sc *model.Scan) {
		stats.Total++
		stats.ByStatus[sc.Status]++
		if !sc.CreatedAt.Before(dayStart) {
			stats.Today++
		}
		if !sc.CreatedAt.Before(weekStart) {
			stats.ThisWeek++
		}
		if !sc.CreatedAt.Before(monthStart) {
			stats.ThisMonth++
		}
		switch sc.Status {
		case model.StatusCompleted:
			completedCount++
			completedDur += sc.Duration
		case model.StatusFailed, model.StatusTimeout:
			failedCount++
		}
		stats.TotalFindings.Critical += sc.Stats.Findings.Critical
		stats.TotalFindings.High += sc.Stats.Findings.High
		stats.TotalFindings.Medium += sc.Stats.Findings.Medium
		stats.TotalFindings.Low += sc.Stats.Findings.Low
		stats.TotalFindings.Info += sc.Stats.Findings.Info
		stats.TotalHosts += len(sc.Results.Hosts)
		stats.TotalServices += len(sc.Results.Services)
		stats.TotalOpenPorts += len(sc.Results.OpenPorts)
	}

	for _, sc := range active {
		tally(sc)
	}
	for _, sc := range history {
		tally(sc)
	}

	if completedCount > 0 {
		stats.AverageDuration = completedDur / time.Duration(completedCount)
	}
	if finished := completedCount + failedCount; finished > 0 {
		stats.SuccessRate = float64(completedCount) / float64(finished)
	}
	return stats
}
