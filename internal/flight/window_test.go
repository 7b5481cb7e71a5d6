package flight

import (
	"testing"
	"time"
)

func TestPlanWindowsContiguousCoverage(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	span := 42 * 24 * time.Hour

	windows := PlanWindows(start, 4, span)
	if len(windows) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(windows))
	}
	if !windows[0].From.Equal(start) {
		t.Fatalf("first window starts at %v, want %v", windows[0].From, start)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].From.Equal(windows[i-1].To) {
			t.Fatalf("window %d not contiguous: prev.To=%v from=%v", i, windows[i-1].To, windows[i].From)
		}
	}
	if got := windows[3].To.Sub(start); got != 4*span {
		t.Fatalf("horizon covered %v, want %v", got, 4*span)
	}
}

func TestPlanWindowsDateFormatting(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 31, 15, 4, 5, 0, time.UTC)
	windows := PlanWindows(start, 1, 42*24*time.Hour)

	if got := windows[0].FromDate(); got != "2026-01-31" {
		t.Fatalf("FromDate = %q", got)
	}
	if got := windows[0].ToDate(); got != "2026-03-14" {
		t.Fatalf("ToDate = %q", got)
	}
}

func TestPlanWindowsDegenerateInputs(t *testing.T) {
	t.Parallel()

	start := time.Now()
	if w := PlanWindows(start, 0, time.Hour); w != nil {
		t.Fatalf("zero count should plan nothing, got %v", w)
	}
	if w := PlanWindows(start, 3, 0); w != nil {
		t.Fatalf("zero span should plan nothing, got %v", w)
	}
}
