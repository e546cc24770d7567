package status

import (
	"strings"
	"testing"
	"time"

	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
)

func TestRenderIncludesPidForRunning(t *testing.T) {
	snapshot := []scheduler.Status{
		{Name: "A", State: program.StateRunning, PID: 4242},
		{Name: "B", State: program.StateBlocked},
	}

	out, err := Render(snapshot, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "name: A") || !strings.Contains(text, "pid: 4242") {
		t.Fatalf("expected A's pid in output, got:\n%s", text)
	}
	if strings.Contains(text, "pid: 0") {
		t.Fatalf("blocked program should not report a pid, got:\n%s", text)
	}
}

func TestRenderIncludesScheduledAtForSleepingCronjob(t *testing.T) {
	when := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	snapshot := []scheduler.Status{
		{Name: "cron", State: program.StateSleeping, IsCronjob: true, HasSchedule: true, ScheduledAt: when},
	}

	out, err := Render(snapshot, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "2026-08-03T12:00:00") {
		t.Fatalf("expected scheduled_at in output, got:\n%s", out)
	}
}

func TestRenderIncludesExitCodeForTerminalStates(t *testing.T) {
	snapshot := []scheduler.Status{
		{Name: "done", State: program.StateDone, ExitCode: 0},
		{Name: "crashed", State: program.StateCrashed, ExitCode: 1},
	}
	out, err := Render(snapshot, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "exit_code: 1") {
		t.Fatalf("expected crashed program's exit code, got:\n%s", text)
	}
}

func TestRenderIncludesNotifyStatusText(t *testing.T) {
	snapshot := []scheduler.Status{{Name: "svc", State: program.StateRunning, PID: 1}}
	out, err := Render(snapshot, map[string]string{"svc": "warming up"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "status: warming up") {
		t.Fatalf("expected status text in output, got:\n%s", out)
	}
}
