package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsComplete(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.applyProfiles()

	if cfg.Client.BaseURL == "" || cfg.Client.Timeout <= 0 {
		t.Fatalf("client defaults incomplete: %+v", cfg.Client)
	}
	if cfg.Orchestrator.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v, want 2s", cfg.Orchestrator.PollInterval)
	}
	if cfg.PushURL == "" {
		t.Fatal("push url default missing")
	}
	for _, name := range []string{"quick", "balanced", "thorough"} {
		if _, ok := cfg.Orchestrator.Profiles[name]; !ok {
			t.Fatalf("built-in profile %q missing", name)
		}
	}
	if cfg.ResolvedStatePath() == "" {
		t.Fatal("state path did not resolve")
	}
}

func TestLoad_OverlaysOntoDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
client:
  base_url: https://scanner.corp.internal/api
  backend: offline
orchestrator:
  history_capacity: 50
push_url: ""
profiles:
  paranoid:
    description: Everything on
    settings:
      ports: "1-65535"
      script_scan: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.BaseURL != "https://scanner.corp.internal/api" {
		t.Fatalf("base url not overlaid: %q", cfg.Client.BaseURL)
	}
	if cfg.Client.Backend != client.BackendOffline {
		t.Fatalf("backend = %q, want offline", cfg.Client.Backend)
	}
	if cfg.Orchestrator.HistoryCapacity != 50 {
		t.Fatalf("history capacity = %d, want 50", cfg.Orchestrator.HistoryCapacity)
	}
	if cfg.PushURL != "" {
		t.Fatalf("push url should be cleared, got %q", cfg.PushURL)
	}
	// Defaults not mentioned in the file survive.
	if cfg.Orchestrator.PollInterval != 2*time.Second {
		t.Fatalf("poll interval lost: %v", cfg.Orchestrator.PollInterval)
	}

	p, ok := cfg.Orchestrator.Profiles["paranoid"]
	if !ok {
		t.Fatal("user profile not registered")
	}
	if p.Name != "paranoid" || !p.Settings.ScriptScan {
		t.Fatalf("user profile wrong: %+v", p)
	}
	if _, ok := cfg.Orchestrator.Profiles["balanced"]; !ok {
		t.Fatal("built-in profiles must survive the overlay")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "client: [this is not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOrDefault_ExplicitMissingPathIsAnError(t *testing.T) {
	t.Parallel()
	_, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound for explicit path, got %v", err)
	}
}

func TestConfig_StatePathOverride(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.StatePath = "/var/lib/aptscan/state.db"
	if cfg.ResolvedStatePath() != "/var/lib/aptscan/state.db" {
		t.Fatalf("explicit state path ignored: %q", cfg.ResolvedStatePath())
	}
}
