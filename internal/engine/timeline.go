package engine

import (
	"time"

	"github.com/andresuchdata/stocklens/internal/domain"
)

// DayLayout is the calendar-day key format used throughout the engine.
const DayLayout = "2006-01-02"

// DayKey converts a timestamp to its UTC calendar-day key.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Window is an inclusive [Start, End] range of UTC calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a trailing window ending on the given day and reaching
// back the requested number of months.
func NewWindow(end time.Time, months int) Window {
	end = truncateDay(end)
	return Window{Start: end.AddDate(0, -months, 0), End: end}
}

// Days enumerates every day key in the window, oldest first. A zero-length
// window (Start == End) yields exactly one entry.
func (w Window) Days() []string {
	days := make([]string, 0, int(w.End.Sub(w.Start).Hours()/24)+1)
	for d := truncateDay(w.Start); !d.After(truncateDay(w.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days
}

// Contains reports whether the given day key falls inside the window.
func (w Window) Contains(day string) bool {
	return day >= w.Start.Format(DayLayout) && day <= w.End.Format(DayLayout)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ReconstructionPolicy turns sparse stock events (or a snapshot) into a
// complete day-indexed availability series for one item. The key set of the
// returned map is always exactly the window's day enumeration. The policy is
// selected once per deployment so a report is internally consistent.
type ReconstructionPolicy interface {
	Name() string
	// Reconstruct fills every day in w. dailySales maps day key to units sold
	// for the item's normalized SKU; only the backward policy consults it.
	Reconstruct(w Window, events []domain.StockEvent, dailySales map[string]int) map[string]int
}

// ForwardAccumulation sums each in-window adjustment delta into that day's
// slot only, with no carry-forward. The resulting value is net change volume
// for the day, not an absolute level; it exists to drive the ">0 means in
// stock" predicate when only the adjustment feed is available. Offsetting
// same-day deltas can under- or over-count; that approximation is retained
// deliberately.
type ForwardAccumulation struct{}

func (ForwardAccumulation) Name() string { return "forward" }

func (ForwardAccumulation) Reconstruct(w Window, events []domain.StockEvent, _ map[string]int) map[string]int {
	series := zeroSeries(w.Days())
	for _, ev := range events {
		if ev.Kind != domain.EventDelta {
			continue
		}
		day := DayKey(ev.OccurredOn)
		if _, ok := series[day]; ok {
			series[day] += ev.Delta
		}
	}
	return series
}

// BackwardFromSnapshot anchors a known quantity at the window's end and walks
// back one day at a time: moving a day earlier, that day's sales had not yet
// happened, so the level must have been at least that much higher. The series
// is a running-balance approximation grounded at the most recent day. Used
// when the upstream exposes only the current level, not adjustment history.
type BackwardFromSnapshot struct{}

func (BackwardFromSnapshot) Name() string { return "backward" }

func (BackwardFromSnapshot) Reconstruct(w Window, events []domain.StockEvent, dailySales map[string]int) map[string]int {
	snapshot, ok := latestSnapshot(events)
	if !ok {
		return zeroSeries(w.Days())
	}

	days := w.Days()
	series := make(map[string]int, len(days))
	running := snapshot
	for i := len(days) - 1; i >= 0; i-- {
		running += dailySales[days[i]]
		series[days[i]] = running
	}
	return series
}

func latestSnapshot(events []domain.StockEvent) (int, bool) {
	var (
		qty   int
		at    time.Time
		found bool
	)
	for _, ev := range events {
		if ev.Kind != domain.EventSnapshot {
			continue
		}
		if !found || ev.OccurredOn.After(at) {
			qty = ev.Quantity
			at = ev.OccurredOn
			found = true
		}
	}
	return qty, found
}

func zeroSeries(days []string) map[string]int {
	series := make(map[string]int, len(days))
	for _, d := range days {
		series[d] = 0
	}
	return series
}

// PolicyByName resolves the configured policy name, defaulting to forward
// accumulation for unknown values.
func PolicyByName(name string) ReconstructionPolicy {
	if name == "backward" {
		return BackwardFromSnapshot{}
	}
	return ForwardAccumulation{}
}
