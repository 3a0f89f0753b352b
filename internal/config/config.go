// Package config loads the application configuration: client resilience
// knobs, orchestrator timers, profile overrides, and paths for durable
// state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/orchestrator"
)

// AppName is used for XDG directory paths.
const AppName = "aptscan"

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Config is the root application configuration.
type Config struct {
	// Client configures the resilient request layer.
	Client client.Config `yaml:"client"`

	// Orchestrator configures timers and retention.
	Orchestrator orchestrator.Config `yaml:"orchestrator"`

	// PushURL is the websocket endpoint for push updates; empty
	// disables the push channel.
	PushURL string `yaml:"push_url"`

	// StatePath is the SQLite file for durable state; empty selects
	// the XDG data directory.
	StatePath string `yaml:"state_path"`

	// Profiles overlay or extend the built-in profile set.
	Profiles map[string]model.Profile `yaml:"profiles"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Client:       client.DefaultConfig(),
		Orchestrator: *orchestrator.DefaultConfig(),
		PushURL:      "ws://localhost:9090/ws/updates",
	}
}

// Load reads the YAML config at path, overlaying it onto defaults.
// A missing file returns ErrConfigNotFound; callers decide whether
// that matters (an explicit --config is an error, the default path is
// not).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyProfiles()
	return cfg, nil
}

// LoadOrDefault loads the config from path (or the default XDG path
// when empty), falling back to defaults when no file exists.
func LoadOrDefault(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := Load(path)
	if errors.Is(err, ErrConfigNotFound) {
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		cfg = Default()
		cfg.applyProfiles()
		return cfg, nil
	}
	return cfg, err
}

// applyProfiles overlays user-defined profiles onto the built-ins.
func (c *Config) applyProfiles() {
	if c.Orchestrator.Profiles == nil {
		c.Orchestrator.Profiles = orchestrator.BuiltinProfiles()
	}
	for name, p := range c.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		c.Orchestrator.Profiles[name] = p
	}
}

// DefaultPath returns the XDG config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, DefaultConfigFile)
}

// DefaultStatePath returns the XDG data file location for the SQLite
// state database.
func DefaultStatePath() string {
	return filepath.Join(xdg.DataHome, AppName, "state.db")
}

// ResolvedStatePath returns StatePath or the XDG default.
func (c *Config) ResolvedStatePath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return DefaultStatePath()
}
