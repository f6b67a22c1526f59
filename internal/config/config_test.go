package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/workprogress/internal/runner"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: warn
monitor:
  propagate_cancel: true
  track_depth: 1
progress:
  buffer_size: 64
  max_batch_events: 8
  max_batch_wait_ms: 100
  sinks:
    publish: true
pubsub:
  project_id: demo
  topic_name: progress
  terminal_only: true
plan:
  name: backup
  total: 10
  unit_delay: 20ms
  steps:
    - name: scan
      allocated: 2
      total: 4
    - name: copy
      allocated: 8
      total: 100
      steps:
        - name: verify
          allocated: 10
          total: 1
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if !cfg.Monitor.PropagateCancel || cfg.Monitor.TrackDepth != 1 {
		t.Fatalf("expected monitor overrides, got %+v", cfg.Monitor)
	}
	if got := cfg.Progress.MaxBatchWait(); got != 100*time.Millisecond {
		t.Fatalf("expected batch wait 100ms, got %v", got)
	}
	if !cfg.Progress.Sinks.Publish || !cfg.Progress.Sinks.Store {
		t.Fatalf("expected publish enabled and store default kept: %+v", cfg.Progress.Sinks)
	}
	if !cfg.PubSub.TerminalOnly || cfg.PubSub.ProjectID != "demo" {
		t.Fatalf("expected pubsub overrides, got %+v", cfg.PubSub)
	}
	if cfg.Plan.Name != "backup" || len(cfg.Plan.Steps) != 2 {
		t.Fatalf("expected plan to be loaded: %+v", cfg.Plan)
	}
	if cfg.Plan.UnitDelay != 20*time.Millisecond {
		t.Fatalf("expected unit delay 20ms, got %v", cfg.Plan.UnitDelay)
	}
	verify := cfg.Plan.Steps[1].Steps[0]
	if verify.Name != "verify" || verify.Allocated != 10 {
		t.Fatalf("expected nested step, got %+v", verify)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Monitor.TrackDepth != -1 || cfg.Monitor.PropagateCancel {
		t.Fatalf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.Progress.BufferSize != 1024 || cfg.Progress.SinkTimeout() != 5*time.Second {
		t.Fatalf("unexpected progress defaults: %+v", cfg.Progress)
	}
	if cfg.Progress.Sinks.Publish {
		t.Fatal("expected publish sink disabled by default")
	}
	if cfg.Plan.Name != "" {
		t.Fatalf("expected no default plan, got %q", cfg.Plan.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsInvalidPlan(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
plan:
  name: broken
  total: 1
  steps:
    - name: too-big
      allocated: 5
      total: 1
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, runner.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Progress: ProgressConfig{BufferSize: 1, MaxBatchEvents: 1},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid buffer",
			cfg: func() Config {
				c := base
				c.Progress.BufferSize = 0
				return c
			}(),
			want: "progress.buffer_size",
		},
		{
			name: "invalid batch",
			cfg: func() Config {
				c := base
				c.Progress.MaxBatchEvents = 0
				return c
			}(),
			want: "progress.max_batch_events",
		},
		{
			name: "publish without topic",
			cfg: func() Config {
				c := base
				c.Progress.Sinks.Publish = true
				return c
			}(),
			want: "pubsub.topic_name",
		},
		{
			name: "plan without total",
			cfg: func() Config {
				c := base
				c.Plan = runner.Plan{Name: "p"}
				return c
			}(),
			want: "plan:",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
