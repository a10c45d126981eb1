package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"flowq/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnvToken(t *testing.T) {
	t.Setenv("FLOWQ_API_TOKEN", "  secret  ")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "flowq")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "flowq.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7611" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Queue.DefaultPriority != 5 {
		t.Fatalf("unexpected default priority: %d", cfg.Queue.DefaultPriority)
	}
	if cfg.ProcessingTimeout() != 30*time.Minute {
		t.Fatalf("unexpected processing timeout: %s", cfg.ProcessingTimeout())
	}
	if cfg.Retention() != 7*24*time.Hour {
		t.Fatalf("unexpected retention: %s", cfg.Retention())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FLOWQ_API_TOKEN", "from-env")

	path := filepath.Join(tempHome, "custom.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":  "~/queues",
			"api_token": "from-file",
		},
		"supervisor": map[string]any{
			"processing_timeout": 60,
			"max_retries":        1,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected existing config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "queues") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIToken != "from-file" {
		t.Fatalf("expected file token to win over env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Supervisor.MaxRetries != 1 || cfg.ProcessingTimeout() != time.Minute {
		t.Fatalf("unexpected supervisor config: %+v", cfg.Supervisor)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if cfg.Cleanup.DeadLetterAfter != config.Default().Cleanup.DeadLetterAfter {
		t.Fatalf("expected default dead_letter_after, got %d", cfg.Cleanup.DeadLetterAfter)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"max parallel", func(c *config.Config) { c.Queue.DefaultMaxParallel = 0 }, "queue.default_max_parallel"},
		{"claim retries", func(c *config.Config) { c.Queue.ClaimRetryAttempts = 0 }, "queue.claim_retry_attempts"},
		{"supervisor interval", func(c *config.Config) { c.Supervisor.Interval = 0 }, "supervisor.interval"},
		{"processing timeout", func(c *config.Config) { c.Supervisor.ProcessingTimeout = -1 }, "supervisor.processing_timeout"},
		{"max retries", func(c *config.Config) { c.Supervisor.MaxRetries = -1 }, "supervisor.max_retries"},
		{"retention", func(c *config.Config) { c.Cleanup.RetentionHours = 0 }, "cleanup.retention_hours"},
		{"dead letter", func(c *config.Config) { c.Cleanup.DeadLetterAfter = 0 }, "cleanup.dead_letter_after"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleParsesAsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	def := config.Default()
	if cfg.Queue != def.Queue || cfg.Supervisor != def.Supervisor || cfg.Cleanup != def.Cleanup {
		t.Fatalf("sample diverges from defaults: %+v", cfg)
	}
}
