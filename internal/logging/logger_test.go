package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flowq/internal/config"
	"flowq/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("queue ready", logging.Int64(logging.FieldQueueID, 3))

	content, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "queue ready") || !strings.Contains(text, "queue_id=3") {
		t.Fatalf("unexpected log file content: %q", text)
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("expected no ANSI colors in log file, got %q", text)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "supervisor").Info("sweep finished", logging.Int("timed_out", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "INFO supervisor: sweep finished timed_out=2") {
		t.Fatalf("unexpected console line: %q", line)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithItemID(logging.WithQueueID(context.Background(), 4), 9)
	ctx = logging.WithAgentID(ctx, "agent-1")
	logging.WithContext(ctx, logger).Warn("claim conflict", logging.Duration("waited", 1500*time.Millisecond+300*time.Microsecond))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, content)
	}
	if payload["level"] != "warn" || payload["msg"] != "claim conflict" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["queue_id"] != float64(4) || payload["item_id"] != float64(9) || payload["agent_id"] != "agent-1" {
		t.Fatalf("expected context fields, got %v", payload)
	}
	ts, ok := payload["ts"].(string)
	if !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", ts); err != nil || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("expected millisecond UTC timestamp, got %q (%v)", ts, err)
	}
	if payload["waited"] != "1.5s" {
		t.Fatalf("expected duration rendered as text, got %v", payload["waited"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestErrorWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "err.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "sweep failed", "supervisor_sweep_failed")
	logging.WarnWithContext(logger, "mirror drift", "mirror_drift", logging.String(logging.FieldErrorHint, "run flowq reconcile"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{
		"event_type=supervisor_sweep_failed",
		`error_hint="check logs for details"`,
		`error_hint="run flowq reconcile"`,
		"impact=",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}
