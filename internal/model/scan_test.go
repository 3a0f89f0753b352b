package model

import (
	"testing"
	"time"
)

func TestMergeSettings_OverlaysNonZeroFields(t *testing.T) {
	t.Parallel()
	defaults := ScanSettings{TimingTemplate: 3, Ports: "1-1024", MaxRate: 500, Aggressiveness: "medium"}
	merged := MergeSettings(defaults, ScanSettings{Ports: "22,80,443", ScriptScan: true})

	if merged.TimingTemplate != 3 || merged.MaxRate != 500 || merged.Aggressiveness != "medium" {
		t.Fatalf("defaults lost: %+v", merged)
	}
	if merged.Ports != "22,80,443" || !merged.ScriptScan {
		t.Fatalf("overrides not applied: %+v", merged)
	}
}

func TestCountBySeverity(t *testing.T) {
	t.Parallel()
	vulns := []Vulnerability{
		{ID: "a", Severity: SeverityCritical},
		{ID: "b", Severity: SeverityCritical},
		{ID: "c", Severity: SeverityHigh},
		{ID: "d", Severity: SeverityLow},
		{ID: "e", Severity: SeverityInfo},
	}
	counts := CountBySeverity(vulns)
	if counts.Critical != 2 || counts.High != 1 || counts.Medium != 0 || counts.Low != 1 || counts.Info != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts.Total() != 5 {
		t.Fatalf("total = %d, want 5", counts.Total())
	}
}

func TestScanClone_IsDeep(t *testing.T) {
	t.Parallel()
	started := time.Now()
	orig := &Scan{
		ID:     "s-1",
		Target: "10.0.0.1",
		Status: StatusRunning,
		Tags:   []string{"prod"},
		Metadata: map[string]string{
			"owner": "it",
		},
		StartedAt: &started,
		Results: ScanResults{
			OpenPorts: []Port{{Number: 22, Protocol: "tcp"}},
			Reports:   []string{"a.pdf"},
		},
		Errors: []Diagnostic{{Type: "net", Message: "flap"}},
	}

	cp := orig.Clone()
	cp.Tags[0] = "mutated"
	cp.Metadata["owner"] = "mutated"
	cp.Results.OpenPorts[0].Number = 9999
	cp.Results.Reports[0] = "mutated"
	cp.Errors[0].Message = "mutated"
	*cp.StartedAt = cp.StartedAt.Add(time.Hour)

	if orig.Tags[0] != "prod" || orig.Metadata["owner"] != "it" {
		t.Fatal("clone shares tag or metadata storage")
	}
	if orig.Results.OpenPorts[0].Number != 22 || orig.Results.Reports[0] != "a.pdf" {
		t.Fatal("clone shares results storage")
	}
	if orig.Errors[0].Message != "flap" {
		t.Fatal("clone shares diagnostics storage")
	}
	if !orig.StartedAt.Equal(started) {
		t.Fatal("clone shares timestamp pointer")
	}
}
