package model

// ScanStatus is the lifecycle state of a Scan. Transitions are fixed;
// anything not listed in transitions is illegal and must be rejected
// with a PreconditionError.
type ScanStatus string

const (
	StatusIdle       ScanStatus = "idle"
	StatusStarting   ScanStatus = "starting"
	StatusValidating ScanStatus = "validating"
	StatusRunning    ScanStatus = "running"
	StatusPaused     ScanStatus = "paused"
	StatusStopping   ScanStatus = "stopping"
	StatusCompleted  ScanStatus = "completed"
	StatusCancelled  ScanStatus = "cancelled"
	StatusFailed     ScanStatus = "failed"
	StatusTimeout    ScanStatus = "timeout"
)

var transitions = map[ScanStatus][]ScanStatus{
	StatusIdle:       {StatusStarting},
	StatusStarting:   {StatusValidating, StatusRunning, StatusFailed},
	StatusValidating: {StatusRunning, StatusFailed},
	StatusRunning:    {StatusPaused, StatusStopping, StatusCompleted, StatusFailed, StatusTimeout},
	StatusPaused:     {StatusRunning, StatusStopping},
	StatusStopping:   {StatusCompleted, StatusCancelled, StatusFailed, StatusTimeout},
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// IsActive reports whether a scan in this status has remote work in
// flight and therefore carries a poll timer. Paused scans keep their
// timer armed (the cadence pauses, the timer does not go away).
func (s ScanStatus) IsActive() bool {
	switch s {
	case StatusStarting, StatusValidating, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s ScanStatus) IsValid() bool {
	switch s {
	case StatusIdle, StatusStarting, StatusValidating, StatusRunning,
		StatusPaused, StatusStopping, StatusCompleted, StatusCancelled,
		StatusFailed, StatusTimeout:
		return true
	}
	return false
}
