package model

// Severity classifies a vulnerability finding. String-typed because the
// values travel over the wire and into persisted snapshots as-is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SeverityCounts holds per-severity finding totals.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Add increments the counter for sev. Unknown severities count as info.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	default:
		c.Info++
	}
}

// Total returns the sum over all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// CountBySeverity tallies a slice of vulnerabilities.
func CountBySeverity(vulns []Vulnerability) SeverityCounts {
	var counts SeverityCounts
	for _, v := range vulns {
		counts.Add(v.Severity)
	}
	return counts
}
