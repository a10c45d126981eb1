package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"flowq/internal/api"
)

func TestJSONErrorCarriesKind(t *testing.T) {
	env := setupCLITestEnv(t)

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", env.configPath, "--json", "queue", "show", "999"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected missing queue to fail")
	}
	if !jsonRequested(cmd) {
		t.Fatal("expected --json to be visible after execution")
	}

	var buf bytes.Buffer
	if err := writeJSONError(&buf, err); err != nil {
		t.Fatalf("writeJSONError: %v", err)
	}
	var payload api.ErrorResponse
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, buf.String())
	}
	if payload.Kind != "not_found" || payload.Error == "" {
		t.Fatalf("unexpected error body: %+v", payload)
	}
}

func TestJSONRequestedDefaultsOff(t *testing.T) {
	if jsonRequested(newRootCommand()) {
		t.Fatal("expected --json to default to false")
	}
}
