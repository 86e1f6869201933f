package readings

import (
	"testing"
	"time"
)

func guardAt(t *testing.T, instant time.Time) *WindowGuard {
	t.Helper()
	guard := NewWindowGuard(6, time.UTC)
	guard.clock = func() time.Time { return instant }
	return guard
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCutoffWeekday(t *testing.T) {
	// 2025-06-02 is a Monday; cutoff is Tuesday 06:00.
	guard := NewWindowGuard(6, time.UTC)
	cutoff := guard.CutoffFor(date(2025, time.June, 2))
	want := time.Date(2025, time.June, 3, 6, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", cutoff, want)
	}
}

func TestCutoffFridayAndSaturdayRollToMonday(t *testing.T) {
	guard := NewWindowGuard(6, time.UTC)
	monday := time.Date(2025, time.June, 9, 6, 0, 0, 0, time.UTC)

	// 2025-06-06 is a Friday, 2025-06-07 a Saturday.
	if cutoff := guard.CutoffFor(date(2025, time.June, 6)); !cutoff.Equal(monday) {
		t.Fatalf("friday cutoff = %v, want %v", cutoff, monday)
	}
	if cutoff := guard.CutoffFor(date(2025, time.June, 7)); !cutoff.Equal(monday) {
		t.Fatalf("saturday cutoff = %v, want %v", cutoff, monday)
	}
}

func TestCutoffSundayRollsToMonday(t *testing.T) {
	guard := NewWindowGuard(6, time.UTC)
	cutoff := guard.CutoffFor(date(2025, time.June, 8))
	want := time.Date(2025, time.June, 9, 6, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Fatalf("sunday cutoff = %v, want %v", cutoff, want)
	}
}

func TestEvaluateBoundary(t *testing.T) {
	monday := date(2025, time.June, 2)

	// Strictly before Tuesday 06:00 the window is open.
	guard := guardAt(t, time.Date(2025, time.June, 3, 5, 59, 59, 0, time.UTC))
	if _, open := guard.Evaluate(monday); !open {
		t.Fatal("expected window open before cutoff")
	}

	// At the cutoff instant the window is closed.
	guard = guardAt(t, time.Date(2025, time.June, 3, 6, 0, 0, 0, time.UTC))
	if _, open := guard.Evaluate(monday); open {
		t.Fatal("expected window closed at cutoff")
	}

	guard = guardAt(t, time.Date(2025, time.June, 3, 6, 0, 1, 0, time.UTC))
	if _, open := guard.Evaluate(monday); open {
		t.Fatal("expected window closed after cutoff")
	}
}
