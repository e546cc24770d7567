package cronexpr

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) *Expression {
	t.Helper()
	e, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", raw, err)
	}
	return e
}

func TestParseStar(t *testing.T) {
	e := mustParse(t, "* * * * *")
	if len(e.minute) != 60 || len(e.hour) != 24 || len(e.day) != 31 || len(e.month) != 12 || len(e.weekday) != 7 {
		t.Fatalf("unexpected field sizes: %+v", e)
	}
}

func TestParseStepEveryFifteenMinutes(t *testing.T) {
	e := mustParse(t, "*/15 * * * *")
	want := []int{0, 15, 30, 45}
	if len(e.minute) != len(want) {
		t.Fatalf("got %v want %v", e.minute, want)
	}
	for i, v := range want {
		if e.minute[i] != v {
			t.Fatalf("got %v want %v", e.minute, want)
		}
	}
}

func TestParseRangeWithStep(t *testing.T) {
	e, err := Parse("1-15/3 * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]bool{1: true, 4: true, 7: true, 10: true, 13: true}
	if len(e.minute) != len(want) {
		t.Fatalf("got %v want %v", e.minute, want)
	}
	for _, v := range e.minute {
		if !want[v] {
			t.Fatalf("unexpected value %d in %v", v, e.minute)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"5-2 * * * *",
		"abc * * * *",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) should have failed", c)
		}
	}
}

func TestEveryFifteenMinutesFiring(t *testing.T) {
	e := mustParse(t, "*/15 * * * *")
	loc := time.UTC
	from := time.Date(2026, 1, 1, 10, 3, 0, 0, loc)
	next := e.NextFire(from)
	if next.Minute() != 15 || next.Hour() != 10 {
		t.Fatalf("expected 10:15, got %v", next)
	}

	from2 := time.Date(2026, 1, 1, 10, 45, 0, 0, loc)
	next2 := e.NextFire(from2)
	if next2.Minute() != 0 || next2.Hour() != 11 {
		t.Fatalf("expected 11:00, got %v", next2)
	}
}

func TestNextFireIdempotentOnNonMatching(t *testing.T) {
	e := mustParse(t, "0 3 * * *")
	from := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	first := e.NextFire(from)
	second := e.NextFire(first)
	if !second.After(first) {
		t.Fatalf("NextFire(NextFire(t)) = %v should be after NextFire(t) = %v", second, first)
	}
}

func TestWeekdayAndDayIntersection(t *testing.T) {
	// Both day-of-month and day-of-week restricted: intersection semantics
	// mean a match requires the concrete day to satisfy both.
	e := mustParse(t, "0 0 1 * 1") // first of month AND a Monday
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := e.NextFire(from)
	if next.Day() != 1 || next.Weekday() != time.Monday {
		t.Fatalf("expected a Monday on the 1st, got %v (%v)", next, next.Weekday())
	}
}

func TestDSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-03-08 is the US spring-forward date: 02:00->03:00 local does not
	// exist. A cron firing at 02:30 should land at or after 03:00.
	e := mustParse(t, "30 2 * * *")
	from := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	next := e.NextFire(from)
	boundary := time.Date(2026, 3, 8, 3, 0, 0, 0, loc)
	if next.Before(boundary) {
		t.Fatalf("expected next fire >= %v, got %v", boundary, next)
	}
}

func TestCronReentrancyScheduling(t *testing.T) {
	e := mustParse(t, "* * * * *")
	loc := time.UTC
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, loc)
	first := e.NextFire(t0)
	second := e.NextFire(first)
	if second.Sub(first) != time.Minute {
		t.Fatalf("expected consecutive minute firings, got %v then %v", first, second)
	}
}
