package supervisorlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandleFormatsWireLine(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, slog.LevelInfo)

	r := slog.NewRecord(time.Date(2024, 3, 5, 10, 30, 0, 250_000_000, time.UTC), slog.LevelInfo, "listening", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := buf.String()
	want := "2024-03-05T10:30:00.250 INFO [cinit] listening\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHandleUsesNameAttr(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, slog.LevelInfo).WithAttrs([]slog.Attr{slog.String("name", "worker")})

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "[worker] hello") {
		t.Fatalf("expected worker-tagged line, got %q", buf.String())
	}
}

func TestEnabledRespectsLevel(t *testing.T) {
	h := New(&bytes.Buffer{}, slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("expected INFO to be disabled when level floor is WARN")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("expected ERROR to be enabled")
	}
}
