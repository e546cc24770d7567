package graph

import "testing"

func TestSingleRunnableProgram(t *testing.T) {
	m, err := Build([]Program{{ID: 0, Name: "first"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.HasRunnables() {
		t.Fatalf("expected a runnable program")
	}
	id, ok := m.PopRunnable()
	if !ok || id != 0 {
		t.Fatalf("expected program 0 runnable, got %v %v", id, ok)
	}
	if m.HasRunnables() {
		t.Fatalf("expected no more runnables")
	}
}

func TestCyclicDependencyRejected(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "first", After: []string{"second"}},
		{ID: 1, Name: "second", After: []string{"first"}},
	}
	if _, err := Build(programs); err == nil {
		t.Fatalf("expected a CycleError")
	}
}

func TestDependantsBecomeRunnableOnFinish(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "first", After: []string{"second"}},
		{ID: 1, Name: "second"},
	}
	m, err := Build(programs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, ok := m.PopRunnable()
	if !ok || id != 1 {
		t.Fatalf("expected program 1 (second) runnable first, got %v %v", id, ok)
	}
	if m.HasRunnables() {
		t.Fatalf("first should still be blocked")
	}
	m.NotifyFinished(1)
	if !m.HasRunnables() {
		t.Fatalf("expected first to become runnable")
	}
	id, ok = m.PopRunnable()
	if !ok || id != 0 {
		t.Fatalf("expected program 0 (first) runnable, got %v %v", id, ok)
	}
}

func TestTwoDependenciesBothMustFinish(t *testing.T) {
	// third depends on first (via After); second must run before third
	// (via Before). third only becomes runnable once both first and
	// second have finished.
	programs := []Program{
		{ID: 0, Name: "first"},
		{ID: 1, Name: "second", Before: []string{"third"}},
		{ID: 2, Name: "third", After: []string{"first"}},
	}
	m, err := Build(programs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.PopRunnable(); !ok {
		t.Fatalf("expected a runnable program")
	}
	if _, ok := m.PopRunnable(); !ok {
		t.Fatalf("expected a second runnable program")
	}
	if m.HasRunnables() {
		t.Fatalf("expected exactly two initial runnables (first, second)")
	}

	m.NotifyFinished(0)
	if m.HasRunnables() {
		t.Fatalf("finishing first alone should not unblock third")
	}
	m.NotifyFinished(1)
	if !m.HasRunnables() {
		t.Fatalf("expected third to become runnable once both predecessors finished")
	}
	id, ok := m.PopRunnable()
	if !ok || id != 2 {
		t.Fatalf("expected program 2 (third) runnable, got %v %v", id, ok)
	}
}

func TestUnknownAfterReferenceRejected(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "first", After: []string{"ghost"}},
	}
	if _, err := Build(programs); err == nil {
		t.Fatalf("expected UnknownReferenceError")
	}
}

func TestUnknownBeforeReferenceRejected(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "first", Before: []string{"ghost"}},
	}
	if _, err := Build(programs); err == nil {
		t.Fatalf("expected UnknownReferenceError")
	}
}

func TestCronjobAfterReferenceRejected(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "cron", IsCronjob: true},
		{ID: 1, Name: "other", After: []string{"cron"}},
	}
	if _, err := Build(programs); err == nil {
		t.Fatalf("expected CronjobDependencyError")
	}
}

func TestCronjobBeforeReferenceRejected(t *testing.T) {
	// cron.Before=[other] is the same edge as other.After=[cron], which
	// TestCronjobAfterReferenceRejected already forbids — so this must be
	// rejected too, symmetrically, rather than silently building a graph
	// where "other" can never become runnable.
	programs := []Program{
		{ID: 0, Name: "cron", IsCronjob: true, Before: []string{"other"}},
		{ID: 1, Name: "other"},
	}
	if _, err := Build(programs); err == nil {
		t.Fatalf("expected CronjobDependencyError")
	}
}

func TestOtherBeforeCronjobIsLegal(t *testing.T) {
	// other.Before=[cron] is the same edge as cron.After=[other], which is
	// legal (a cronjob may depend on another program). Unlike the rejected
	// case above, this must actually unblock: check cron becomes runnable
	// once other finishes, not just that Build succeeds.
	programs := []Program{
		{ID: 0, Name: "other", Before: []string{"cron"}},
		{ID: 1, Name: "cron", IsCronjob: true},
	}
	m, err := Build(programs)
	if err != nil {
		t.Fatalf("other depending on, and preceding, a cronjob should be legal: %v", err)
	}
	if !m.IsRunnable(0) {
		t.Fatalf("expected other to be initially runnable")
	}
	if m.IsRunnable(1) {
		t.Fatalf("expected cron to stay blocked until other finishes")
	}
	m.NotifyFinished(0)
	if !m.IsRunnable(1) {
		t.Fatalf("expected cron to become runnable once other finished")
	}
}

func TestNotifyFinishedIsIdempotent(t *testing.T) {
	programs := []Program{
		{ID: 0, Name: "first", After: []string{"second"}},
		{ID: 1, Name: "second"},
	}
	m, err := Build(programs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.NotifyFinished(1)
	m.NotifyFinished(1)
	count := 0
	for m.HasRunnables() {
		m.PopRunnable()
		count++
	}
	if count != 2 {
		t.Fatalf("expected exactly 2 runnables total, got %d", count)
	}
}
