package orchestrator

import (
	"context"
	"time"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// MergeProgress applies a progress update. Progress is clamped to
// [0,100] and never decreases while the scan is active; once progress
// is above zero the estimated completion time is re-extrapolated.
// Idle and terminal scans reject updates with a PreconditionError.
func (o *Orchestrator) MergeProgress(id string, progress int, phase, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return errNotFound(id)
	}
	if scan.Status.IsTerminal() || scan.Status == model.StatusIdle {
		status := scan.Status
		o.mu.Unlock()
		return &model.PreconditionError{Op: "progress", ScanID: id, Status: status}
	}
	if progress > scan.Progress {
		scan.Progress = progress
	}
	if phase != "" {
		scan.Phase = phase
	}
	if message != "" {
		scan.PhaseMessage = message
	}
	if scan.Progress > 0 && scan.Progress < 100 && scan.StartedAt != nil {
		elapsed := now.Sub(*scan.StartedAt)
		total := time.Duration(float64(elapsed) * 100 / float64(scan.Progress))
		est := scan.StartedAt.Add(total)
		scan.EstimatedEnd = &est
	}
	scan.Stats.Elapsed = elapsedSince(scan.StartedAt, now)
	scan.LastUpdated = now
	cp := scan.Clone()
	o.mu.Unlock()

	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	return nil
}

// MergeResults folds partial results into the scan. Result sets only
// ever grow: merging is a union keyed per collection, so applying the
// same partial twice (poll + push) is a no-op the second time.
func (o *Orchestrator) MergeResults(id string, partial model.ScanResults) error {
	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return errNotFound(id)
	}
	mergeResults(&scan.Results, partial)
	recomputeScanStats(scan, now)
	scan.LastUpdated = now
	cp := scan.Clone()
	o.mu.Unlock()

	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	return nil
}

// Complete finishes a scan: merges final results, forces progress to
// 100, records timing, disarms the poll timer and (optionally) kicks
// off best-effort report generation.
func (o *Orchestrator) Complete(id string, finalResults *model.ScanResults) error {
	o.disarmPoll(id)

	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return errNotFound(id)
	}
	if scan.Status.IsTerminal() {
		o.mu.Unlock()
		return nil // already done; completion is idempotent
	}
	if scan.Status == model.StatusIdle {
		status := scan.Status
		o.mu.Unlock()
		return &model.PreconditionError{Op: "complete", ScanID: id, Status: status}
	}
	if finalResults != nil {
		mergeResults(&scan.Results, *finalResults)
	}
	scan.Status = model.StatusCompleted
	scan.Progress = 100
	scan.Phase = "done"
	scan.CompletedAt = &now
	if scan.StartedAt != nil {
		scan.Duration = now.Sub(*scan.StartedAt)
	}
	recomputeScanStats(scan, now)
	scan.LastUpdated = now
	autoReport := scan.Options.AutoReport
	cp := scan.Clone()
	o.mu.Unlock()

	o.logger.Info("scan completed",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "duration", Value: cp.Duration.String()})
	o.bus.publish(Event{Type: EventUpdated, Scan: cp})

	if autoReport {
		go o.generateReport(id)
	}
	return nil
}

// generateReport is best-effort: a failure is logged, never propagated
// and never retried.
func (o *Orchestrator) generateReport(id string) {
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := o.client.Post(ctx, "/scan/"+id+"/report", nil)
	if err != nil {
		o.logger.Warn("report generation failed",
			logging.Field{Key: "scan_id", Value: id},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	var report model.ReportResponse
	if err := resp.JSON(&report); err != nil {
		o.logger.Warn("decoding report response",
			logging.Field{Key: "scan_id", Value: id},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}

	o.mu.Lock()
	if scan, ok := o.scans[id]; ok && report.File != "" {
		scan.Results.Reports = appendUnique(scan.Results.Reports, report.File)
	}
	o.mu.Unlock()
	o.logger.Info("report generated",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "report_id", Value: report.ReportID})
}

// ApplyPushEvent feeds one push-channel event into the same update
// path the poller uses.
func (o *Orchestrator) ApplyPushEvent(ev model.PushEvent) {
	o.applyStatusResponse(ev.ScanID, ev.ScanStatusResponse)
}

// applyStatusResponse merges one remote status payload (from poll or
// push). It is idempotent under at-least-once delivery: progress takes
// the maximum, result sets take the union, diagnostics deduplicate.
func (o *Orchestrator) applyStatusResponse(id string, w model.ScanStatusResponse) {
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok || scan.Status.IsTerminal() || scan.Status == model.StatusIdle {
		o.mu.Unlock()
		return
	}

	now := time.Now()
	if w.Progress > scan.Progress && w.Progress <= 100 {
		scan.Progress = w.Progress
	}
	if w.Phase != "" {
		scan.Phase = w.Phase
	}
	if w.PhaseMessage != "" {
		scan.PhaseMessage = w.PhaseMessage
	}
	if scan.Progress > 0 && scan.Progress < 100 && scan.StartedAt != nil {
		elapsed := now.Sub(*scan.StartedAt)
		total := time.Duration(float64(elapsed) * 100 / float64(scan.Progress))
		est := scan.StartedAt.Add(total)
		scan.EstimatedEnd = &est
	}
	if w.Results != nil {
		mergeResults(&scan.Results, *w.Results)
		recomputeScanStats(scan, now)
	}
	scan.Errors = mergeDiagnostics(scan.Errors, w.Errors)
	scan.Warnings = mergeDiagnostics(scan.Warnings, w.Warnings)
	scan.LastUpdated = now

	remote := model.ScanStatus(w.Status)
	localStatus := scan.Status
	cp := scan.Clone()
	o.mu.Unlock()

	switch {
	case remote == localStatus || !remote.IsValid():
		o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	case remote == model.StatusCompleted:
		_ = o.Complete(id, w.Results)
	case remote.IsTerminal():
		o.applyRemoteTerminal(id, remote)
	case localStatus.CanTransitionTo(remote):
		_ = o.transition(id, "sync", remote, localStatus)
	default:
		// Remote disagrees but the local transition is illegal; keep
		// local state, the merged fields above still went through.
		o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	}
}

// applyRemoteTerminal ends a scan with the terminal status the remote
// reported. The remote outcome is authoritative: the service may have
// ended the scan on its own, so a terminal status lands even when the
// local machine has no matching edge.
func (o *Orchestrator) applyRemoteTerminal(id string, status model.ScanStatus) {
	o.disarmPoll(id)

	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok || scan.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	scan.Status = status
	scan.CompletedAt = &now
	if scan.StartedAt != nil {
		scan.Duration = now.Sub(*scan.StartedAt)
	}
	scan.LastUpdated = now
	cp := scan.Clone()
	o.mu.Unlock()

	o.logger.Warn("scan ended remotely",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "status", Value: string(status)})
	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
}

// mergeResults unions partial into dst without ever shrinking it.
func mergeResults(dst *model.ScanResults, partial model.ScanResults) {
	for _, p := range partial.OpenPorts {
		if !hasPort(dst.OpenPorts, p) {
			dst.OpenPorts = append(dst.OpenPorts, p)
		}
	}
	for _, h := range partial.Hosts {
		if !hasHost(dst.Hosts, h) {
			dst.Hosts = append(dst.Hosts, h)
		}
	}
	for _, s := range partial.Services {
		if !hasService(dst.Services, s) {
			dst.Services = append(dst.Services, s)
		}
	}
	for _, v := range partial.Vulnerabilities {
		if !hasVuln(dst.Vulnerabilities, v) {
			dst.Vulnerabilities = append(dst.Vulnerabilities, v)
		}
	}
	for _, r := range partial.Reports {
		dst.Reports = appendUnique(dst.Reports, r)
	}
	if partial.RiskScore > dst.RiskScore {
		dst.RiskScore = partial.RiskScore
	}
}

// recomputeScanStats refreshes the scan-local counters from the merged
// result set.
func recomputeScanStats(scan *model.Scan, now time.Time) {
	scan.Stats.Findings = model.CountBySeverity(scan.Results.Vulnerabilities)
	scan.Stats.TargetsScanned = len(scan.Results.Hosts)
	responsive := 0
	for _, h := range scan.Results.Hosts {
		if h.State == "up" {
			responsive++
		}
	}
	scan.Stats.TargetsResponsive = responsive
	scan.Stats.Elapsed = elapsedSince(scan.StartedAt, now)
}

func mergeDiagnostics(dst, src []model.Diagnostic) []model.Diagnostic {
	for _, d := range src {
		dup := false
		for _, existing := range dst {
			if existing.Type == d.Type && existing.Message == d.Message {
				dup = true
				break
			}
		}
		if !dup {
			if d.Timestamp.IsZero() {
				d.Timestamp = time.Now()
			}
			dst = append(dst, d)
		}
	}
	return dst
}

func hasPort(set []model.Port, p model.Port) bool {
	for _, e := range set {
		if e.Number == p.Number && e.Protocol == p.Protocol {
			return true
		}
	}
	return false
}

func hasHost(set []model.Host, h model.Host) bool {
	for _, e := range set {
		if e.Address == h.Address {
			return true
		}
	}
	return false
}

func hasService(set []model.Service, s model.Service) bool {
	for _, e := range set {
		if e.Name == s.Name && e.Port == s.Port {
			return true
		}
	}
	return false
}

func hasVuln(set []model.Vulnerability, v model.Vulnerability) bool {
	for _, e := range set {
		if e.ID == v.ID {
			return true
		}
	}
	return false
}

func appendUnique(set []string, s string) []string {
	for _, e := range set {
		if e == s {
			return set
		}
	}
	return append(set, s)
}

func elapsedSince(start *time.Time, now time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return now.Sub(*start)
}
