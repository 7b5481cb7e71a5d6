package flight

import "time"

// dateLayout is the wire format upstream timetable endpoints expect.
const dateLayout = "2006-01-02"

// Window is a half-open crawl date range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// FromDate formats the inclusive start for upstream payloads.
func (w Window) FromDate() string { return w.From.Format(dateLayout) }

// ToDate formats the exclusive end for upstream payloads.
func (w Window) ToDate() string { return w.To.Format(dateLayout) }

// PlanWindows splits the future horizon starting at start into count
// contiguous windows of span each. Callers size span to the upstream's
// maximum range per request so every window is fetchable in one call.
func PlanWindows(start time.Time, count int, span time.Duration) []Window {
	if count <= 0 || span <= 0 {
		return nil
	}
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		windows = append(windows, Window{
			From: start.Add(time.Duration(i) * span),
			To:   start.Add(time.Duration(i+1) * span),
		})
	}
	return windows
}
