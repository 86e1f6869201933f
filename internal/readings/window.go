package readings

import "time"

// WindowGuard decides whether a reading may still be edited without a
// manager override. The deadline is the cutoff hour on the next business day
// after the reading date; Friday and Saturday readings both roll forward to
// Monday so weekend shifts can be corrected on the first working morning.
type WindowGuard struct {
	cutoffHour int
	loc        *time.Location
	clock      func() time.Time
}

// NewWindowGuard constructs a guard with the station-local timezone.
func NewWindowGuard(cutoffHour int, loc *time.Location) *WindowGuard {
	if loc == nil {
		loc = time.Local
	}
	return &WindowGuard{
		cutoffHour: cutoffHour,
		loc:        loc,
		clock:      time.Now,
	}
}

// CutoffFor returns the edit deadline for a reading date.
func (g *WindowGuard) CutoffFor(readingDate time.Time) time.Time {
	day := time.Date(readingDate.Year(), readingDate.Month(), readingDate.Day(), 0, 0, 0, 0, g.loc)

	var daysAhead int
	switch day.Weekday() {
	case time.Friday:
		daysAhead = 3
	case time.Saturday:
		daysAhead = 2
	default:
		daysAhead = 1
	}

	deadline := day.AddDate(0, 0, daysAhead)
	return time.Date(deadline.Year(), deadline.Month(), deadline.Day(), g.cutoffHour, 0, 0, 0, g.loc)
}

// Evaluate reads the clock exactly once and reports whether the window is
// still open, along with the instant used for the decision. A single clock
// read keeps the boundary check free of races at the exact cutoff.
func (g *WindowGuard) Evaluate(readingDate time.Time) (now time.Time, open bool) {
	now = g.clock()
	return now, now.Before(g.CutoffFor(readingDate))
}
