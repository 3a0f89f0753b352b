package demoserver

import "time"

// Config controls the demo scanning service.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// TickInterval is how often simulated scans advance.
	TickInterval time.Duration `yaml:"tick_interval"`

	// ScanDuration is how long a simulated scan takes to finish.
	ScanDuration time.Duration `yaml:"scan_duration"`
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":9090",
		TickInterval: time.Second,
		ScanDuration: 30 * time.Second,
	}
}
