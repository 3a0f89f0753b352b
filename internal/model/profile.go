package model

// Profile is a named bundle of default scan settings selectable at
// creation time.
type Profile struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Settings    ScanSettings `json:"settings" yaml:"settings"`
}

// ScanSettings describe how the remote engine should run a scan. The
// zero value of a field means "unset" so profile defaults survive a
// merge with caller overrides.
type ScanSettings struct {
	TimingTemplate   int    `json:"timing_template,omitempty" yaml:"timing_template,omitempty"`
	Ports            string `json:"ports,omitempty" yaml:"ports,omitempty"`
	MaxRate          int    `json:"max_rate,omitempty" yaml:"max_rate,omitempty"`
	ServiceDetection bool   `json:"service_detection,omitempty" yaml:"service_detection,omitempty"`
	OSDetection      bool   `json:"os_detection,omitempty" yaml:"os_detection,omitempty"`
	ScriptScan       bool   `json:"script_scan,omitempty" yaml:"script_scan,omitempty"`
	Aggressiveness   string `json:"aggressiveness,omitempty" yaml:"aggressiveness,omitempty"`
}

// ScanOptions are behavioral toggles for the client-side lifecycle,
// frozen at creation.
type ScanOptions struct {
	// AutoReport requests best-effort report generation on completion.
	AutoReport bool `json:"auto_report,omitempty" yaml:"auto_report,omitempty"`

	// ValidateTarget runs target validation during start.
	ValidateTarget bool `json:"validate_target,omitempty" yaml:"validate_target,omitempty"`

	// Force starts the scan even when validation rejects the target;
	// the rejection is recorded as a warning instead of failing.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
}

// MergeSettings overlays non-zero override fields onto profile defaults.
func MergeSettings(defaults, overrides ScanSettings) ScanSettings {
	out := defaults
	if overrides.TimingTemplate != 0 {
		out.TimingTemplate = overrides.TimingTemplate
	}
	if overrides.Ports != "" {
		out.Ports = overrides.Ports
	}
	if overrides.MaxRate != 0 {
		out.MaxRate = overrides.MaxRate
	}
	if overrides.ServiceDetection {
		out.ServiceDetection = true
	}
	if overrides.OSDetection {
		out.OSDetection = true
	}
	if overrides.ScriptScan {
		out.ScriptScan = true
	}
	if overrides.Aggressiveness != "" {
		out.Aggressiveness = overrides.Aggressiveness
	}
	return out
}
