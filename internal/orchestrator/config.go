package orchestrator

import (
	"time"

	"github.com/Kelll31/aptscan/internal/model"
)

// Config tunes the orchestrator's timers and retention policy.
type Config struct {
	// PollInterval is the cadence of per-scan status polling.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxPollFailures disarms a scan's poll timer after this many
	// consecutive failed ticks (each failure also doubles the delay).
	MaxPollFailures int `yaml:"max_poll_failures"`

	// SweepInterval is the cadence of the retention sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ValidationMaxAge is how long target-validation verdicts survive
	// before the sweeper evicts them.
	ValidationMaxAge time.Duration `yaml:"validation_max_age"`

	// RetentionWindow is how long a terminal scan stays in the active
	// collection (by last-update time) before migrating to history.
	RetentionWindow time.Duration `yaml:"retention_window"`

	// HistoryCapacity bounds the history collection; oldest-created
	// entries are evicted first.
	HistoryCapacity int `yaml:"history_capacity"`

	// Profiles are the named settings bundles selectable at creation.
	Profiles map[string]model.Profile `yaml:"profiles"`
}

// DefaultConfig returns the documented defaults plus the built-in
// profiles.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     2 * time.Second,
		MaxPollFailures:  5,
		SweepInterval:    60 * time.Second,
		ValidationMaxAge: time.Hour,
		RetentionWindow:  24 * time.Hour,
		HistoryCapacity:  1000,
		Profiles:         BuiltinProfiles(),
	}
}

// BuiltinProfiles returns the default profile set.
func BuiltinProfiles() map[string]model.Profile {
	return map[string]model.Profile{
		"quick": {
			Name:        "quick",
			Description: "Fast top-ports sweep, no service probes",
			Settings: model.ScanSettings{
				TimingTemplate: 4,
				Ports:          "top-100",
				MaxRate:        1000,
				Aggressiveness: "low",
			},
		},
		"balanced": {
			Name:        "balanced",
			Description: "Default trade-off between speed and coverage",
			Settings: model.ScanSettings{
				TimingTemplate:   3,
				Ports:            "1-1024",
				MaxRate:          500,
				ServiceDetection: true,
				Aggressiveness:   "medium",
			},
		},
		"thorough": {
			Name:        "thorough",
			Description: "Full port range with service, OS and script probes",
			Settings: model.ScanSettings{
				TimingTemplate:   2,
				Ports:            "1-65535",
				MaxRate:          200,
				ServiceDetection: true,
				OSDetection:      true,
				ScriptScan:       true,
				Aggressiveness:   "high",
			},
		},
	}
}
