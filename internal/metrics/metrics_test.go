package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
)

func TestCountsTalliesByState(t *testing.T) {
	snapshot := []scheduler.Status{
		{Name: "a", State: program.StateDone},
		{Name: "b", State: program.StateDone},
		{Name: "c", State: program.StateCrashed},
	}
	counts := Counts(snapshot)
	if counts["done"] != 2 || counts["crashed"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestObserveSetsOneHotGauge(t *testing.T) {
	snapshot := []scheduler.Status{{Name: "a", State: program.StateRunning}}
	Observe(snapshot)

	running := testGaugeValue(t, "a", "running")
	blocked := testGaugeValue(t, "a", "blocked")
	if running != 1 {
		t.Fatalf("expected running gauge to be 1, got %v", running)
	}
	if blocked != 0 {
		t.Fatalf("expected blocked gauge to be 0, got %v", blocked)
	}
}

func testGaugeValue(t *testing.T, name, state string) float64 {
	t.Helper()
	var m dto.Metric
	if err := ProgramState.WithLabelValues(name, state).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
