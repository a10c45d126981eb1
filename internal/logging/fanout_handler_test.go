package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts debug")
	}

	logger := slog.New(h).With("component", "test")
	logger.Debug("only debug")
	logger.Info("both")

	if bytes.Contains(infoBuf.Bytes(), []byte("only debug")) {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	if !bytes.Contains(debugBuf.Bytes(), []byte("only debug")) || !bytes.Contains(infoBuf.Bytes(), []byte("both")) {
		t.Fatalf("unexpected outputs: info=%q debug=%q", infoBuf.String(), debugBuf.String())
	}
	if !bytes.Contains(infoBuf.Bytes(), []byte("component=test")) {
		t.Fatalf("expected WithAttrs to propagate, got %q", infoBuf.String())
	}
}
