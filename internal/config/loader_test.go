package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "askgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("expected default session TTL 1h, got %v", cfg.Session.TTL)
	}
	if cfg.Routing.DefaultThreshold != 80 {
		t.Errorf("expected default threshold 80, got %d", cfg.Routing.DefaultThreshold)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
session:
  ttl: 30m
routing:
  default_threshold: 70
  topics:
    - topic: architecture
      agent_id: architect
    - topic: security
      agent_id: architect
      threshold: 95
  agents:
    - id: architect
      endpoint: http://architect:8080
      workflows: [architecture, security]
notify:
  sinks:
    - provider: slack
      settings:
        webhook_url: https://hooks.slack.com/x
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("expected TTL 30m, got %v", cfg.Session.TTL)
	}
	if len(cfg.Routing.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(cfg.Routing.Topics))
	}
	if cfg.Routing.Topics[1].Threshold != 95 {
		t.Errorf("expected security threshold 95, got %d", cfg.Routing.Topics[1].Threshold)
	}
	if len(cfg.Notify.Sinks) != 1 || cfg.Notify.Sinks[0].Provider != "slack" {
		t.Errorf("unexpected sinks %+v", cfg.Notify.Sinks)
	}
	if cfg.Notify.Sinks[0].Settings["webhook_url"] == "" {
		t.Error("expected sink settings to be parsed")
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
`)
	t.Setenv("ASKGATE_PORT", "7070")
	t.Setenv("ASKGATE_SESSION_TTL", "2h")
	t.Setenv("DATABASE_URL", "postgres://env-host/askgate")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env must beat yaml, got port %q", cfg.Server.Port)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("expected TTL 2h, got %v", cfg.Session.TTL)
	}
	if cfg.Postgres.DSN != "postgres://env-host/askgate" {
		t.Errorf("expected env DSN, got %q", cfg.Postgres.DSN)
	}
}

func TestLoadFrom_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"threshold out of range", "routing:\n  default_threshold: 150\n"},
		{"non-positive ttl", "session:\n  ttl: -5m\n"},
		{"sink without provider", "notify:\n  sinks:\n    - settings:\n        webhook_url: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeYAML(t, tt.yaml)
			if _, err := LoadFrom(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
