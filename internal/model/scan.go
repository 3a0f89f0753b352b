package model

import "time"

// Scan is the client-side record of one scan execution. All mutation
// goes through the orchestrator; everything handed to observers is a
// Clone.
type Scan struct {
	// ID is globally unique, assigned at creation, never reused.
	ID string `json:"id"`

	Target    string            `json:"target"`
	Type      string            `json:"type"`
	Profile   string            `json:"profile"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`

	Status       ScanStatus `json:"status"`
	Progress     int        `json:"progress"`
	Phase        string     `json:"phase,omitempty"`
	PhaseMessage string     `json:"phase_message,omitempty"`

	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	EstimatedEnd *time.Time    `json:"estimated_end,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	LastUpdated  time.Time     `json:"last_updated"`

	// Settings and Options are frozen at creation time.
	Settings ScanSettings `json:"settings"`
	Options  ScanOptions  `json:"options"`

	Results ScanResults `json:"results"`

	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`

	Stats ScanStats `json:"stats"`
}

// ScanResults accumulates monotonically; partial merges only ever add.
type ScanResults struct {
	OpenPorts       []Port          `json:"open_ports,omitempty"`
	Hosts           []Host          `json:"hosts,omitempty"`
	Services        []Service       `json:"services,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
	RiskScore       float64         `json:"risk_score,omitempty"`
	Reports         []string        `json:"reports,omitempty"`
}

type Port struct {
	Number   int    `json:"number"`
	Protocol string `json:"protocol"`
	State    string `json:"state,omitempty"`
	Service  string `json:"service,omitempty"`
}

type Host struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname,omitempty"`
	State    string `json:"state,omitempty"`
}

type Service struct {
	Name    string `json:"name"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
	Port    int    `json:"port,omitempty"`
}

type Vulnerability struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	CVSS        float64  `json:"cvss,omitempty"`
	Port        int      `json:"port,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Diagnostic is one entry in a scan's ordered error or warning list.
type Diagnostic struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Impact    string    `json:"impact,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanStats are scan-local counters, recomputed whenever results merge.
type ScanStats struct {
	TargetsScanned    int            `json:"targets_scanned"`
	TargetsResponsive int            `json:"targets_responsive"`
	Findings          SeverityCounts `json:"findings"`
	Elapsed           time.Duration  `json:"elapsed,omitempty"`
	Accuracy          float64        `json:"accuracy,omitempty"`
}

// Clone returns a deep copy safe to hand to observers.
func (s *Scan) Clone() *Scan {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Tags = append([]string(nil), s.Tags...)
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	cp.StartedAt = cloneTime(s.StartedAt)
	cp.CompletedAt = cloneTime(s.CompletedAt)
	cp.EstimatedEnd = cloneTime(s.EstimatedEnd)
	cp.Results = s.Results.Clone()
	cp.Errors = append([]Diagnostic(nil), s.Errors...)
	cp.Warnings = append([]Diagnostic(nil), s.Warnings...)
	return &cp
}

// Clone returns a deep copy of the result set.
func (r ScanResults) Clone() ScanResults {
	cp := r
	cp.OpenPorts = append([]Port(nil), r.OpenPorts...)
	cp.Hosts = append([]Host(nil), r.Hosts...)
	cp.Services = append([]Service(nil), r.Services...)
	cp.Vulnerabilities = append([]Vulnerability(nil), r.Vulnerabilities...)
	cp.Reports = append([]string(nil), r.Reports...)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
