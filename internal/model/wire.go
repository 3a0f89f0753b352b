package model

// Wire shapes for the remote scanning service (see the endpoint list in
// the demo server, which implements all of them).

// StartScanRequest is the body of POST /scan/start.
type StartScanRequest struct {
	ScanID   string       `json:"scan_id,omitempty"`
	Target   string       `json:"target"`
	Type     string       `json:"type"`
	Profile  string       `json:"profile,omitempty"`
	Settings ScanSettings `json:"settings"`
}

// StartScanResponse is returned by POST /scan/start.
type StartScanResponse struct {
	ScanID            string `json:"scan_id"`
	EstimatedDuration int    `json:"estimated_duration,omitempty"` // seconds
}

// ScanStatusResponse is returned by GET /scan/{id}/status and carried
// inside push events.
type ScanStatusResponse struct {
	Progress     int          `json:"progress"`
	Status       string       `json:"status"`
	Phase        string       `json:"phase,omitempty"`
	PhaseMessage string       `json:"phase_message,omitempty"`
	Results      *ScanResults `json:"results,omitempty"`
	Errors       []Diagnostic `json:"errors,omitempty"`
	Warnings     []Diagnostic `json:"warnings,omitempty"`
}

// ValidateTargetRequest is the body of POST /scan/validate-target.
type ValidateTargetRequest struct {
	Target string `json:"target"`
}

// ValidateTargetResponse is returned by POST /scan/validate-target.
type ValidateTargetResponse struct {
	Valid        bool     `json:"valid"`
	Status       string   `json:"status,omitempty"`
	Message      string   `json:"message,omitempty"`
	ResponseTime float64  `json:"response_time,omitempty"` // milliseconds
	ResolvedIP   string   `json:"resolved_ip,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// ReportResponse is returned by POST /scan/{id}/report.
type ReportResponse struct {
	ReportID string `json:"report_id"`
	File     string `json:"file,omitempty"`
}

// PushEvent is one unsolicited progress event from the push channel.
// It carries the same shape as a poll response, keyed by scan ID, so
// both sources feed one idempotent update path.
type PushEvent struct {
	ScanID string `json:"scan_id"`
	ScanStatusResponse
}
