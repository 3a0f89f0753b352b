package client

import "time"

// Backend names the transport implementation behind the Client.
type Backend string

const (
	BackendNetHTTP Backend = "nethttp"
	BackendOffline Backend = "offline"
)

// Config carries the Client's resilience knobs.
type Config struct {
	// BaseURL is the remote scanning service root, e.g. "http://localhost:9090/api".
	BaseURL string `yaml:"base_url"`

	// Backend selects the transport ("nethttp" or "offline").
	Backend Backend `yaml:"backend"`

	// Timeout bounds each individual attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts is the total number of tries per request (1 = no retry).
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// CacheTTL is the default freshness window for cached GET responses.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RateLimit / RateWindow bound outbound calls to RateLimit per window.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`

	// OfflineDelay is the simulated latency of the offline backend.
	OfflineDelay time.Duration `yaml:"offline_delay"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:9090/api",
		Backend:        BackendNetHTTP,
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		CacheTTL:       5 * time.Minute,
		RateLimit:      100,
		RateWindow:     60 * time.Second,
		OfflineDelay:   50 * time.Millisecond,
	}
}

// withDefaults fills zero fields so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.RateLimit <= 0 {
		c.RateLimit = def.RateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	if c.OfflineDelay <= 0 {
		c.OfflineDelay = def.OfflineDelay
	}
	return c
}
