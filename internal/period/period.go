// Package period owns the quick-filter state: which time window is
// selected and which date bounds that selection translates to. All
// transitions are pure functions on a State value; the owning layer
// holds one instance and re-renders from it.
package period

import (
	"fmt"
	"time"
)

// Mode is the active quick-filter mode.
type Mode int

const (
	Week Mode = iota
	Month
	Year
	All
	Custom
)

func (m Mode) String() string {
	switch m {
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	case All:
		return "all"
	case Custom:
		return "custom"
	}
	return "unknown"
}

// Navigable reports whether previous/next navigation applies to the mode.
func (m Mode) Navigable() bool {
	switch m {
	case Week, Month, Year:
		return true
	}
	return false
}

// Bound identifies one of the two date bounds.
type Bound int

const (
	BoundFrom Bound = iota
	BoundTo
)

// State is the filter selection. DateFrom/DateTo are the ISO date
// strings sent to the server; empty means unbounded. While Mode is
// Week/Month/Year they are always derived from Reference; in All both
// are empty; in Custom they hold whatever the user typed.
type State struct {
	Mode      Mode
	Reference time.Time
	DateFrom  string
	DateTo    string
}

// NewState returns the initial selection: the month containing now.
func NewState(now time.Time) State {
	return State{Mode: Month, Reference: now}.recompute()
}

// Apply activates a quick-filter mode, resetting the reference to now
// and recomputing bounds. Applying Custom keeps the current bounds.
func (s State) Apply(mode Mode, now time.Time) State {
	s.Mode = mode
	s.Reference = now
	if mode == Custom {
		return s
	}
	return s.recompute()
}

// Previous shifts the reference one unit back. No-op for All and Custom.
func (s State) Previous() State {
	return s.shift(-1)
}

// Next shifts the reference one unit forward. No-op for All and Custom.
func (s State) Next() State {
	return s.shift(1)
}

func (s State) shift(dir int) State {
	switch s.Mode {
	case Week:
		s.Reference = s.Reference.AddDate(0, 0, 7*dir)
	case Month:
		s.Reference = addMonthsClamped(s.Reference, dir)
	case Year:
		s.Reference = addMonthsClamped(s.Reference, 12*dir)
	default:
		return s
	}
	return s.recompute()
}

// ResetToCurrent moves the reference back to now without changing mode.
// In Custom mode the bounds stay untouched; the reference still updates.
func (s State) ResetToCurrent(now time.Time) State {
	s.Reference = now
	if !s.Mode.Navigable() {
		return s
	}
	return s.recompute()
}

// WithBound sets one bound directly. Editing a bound while a quick mode
// is active demotes the state to Custom; the other bound is left as-is.
// There is no promotion back to a quick mode.
func (s State) WithBound(b Bound, value string) State {
	s.Mode = Custom
	switch b {
	case BoundFrom:
		s.DateFrom = value
	case BoundTo:
		s.DateTo = value
	}
	return s
}

func (s State) recompute() State {
	s.DateFrom, s.DateTo = Bounds(s.Mode, s.Reference)
	return s
}

// Bounds derives the date window for a mode around a reference date.
// All returns empty bounds; Custom derives nothing and returns empty
// strings (callers in Custom mode keep their own bounds).
func Bounds(mode Mode, ref time.Time) (from, to string) {
	const layout = "2006-01-02"
	switch mode {
	case Week:
		start := weekStart(ref)
		return start.Format(layout), start.AddDate(0, 0, 6).Format(layout)
	case Month:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		return start.Format(layout), start.AddDate(0, 1, -1).Format(layout)
	case Year:
		return fmt.Sprintf("%04d-01-01", ref.Year()), fmt.Sprintf("%04d-12-31", ref.Year())
	}
	return "", ""
}

// Label renders the display caption for the active selection.
func Label(mode Mode, ref time.Time) string {
	switch mode {
	case Week:
		year, week := ref.ISOWeek()
		return fmt.Sprintf("Week %d / %d", week, year)
	case Month:
		return ref.Format("January 2006")
	case Year:
		return fmt.Sprintf("%d", ref.Year())
	case All:
		return "All time"
	}
	return "Custom range"
}

// JumpCaption is the label for the jump-to-current control. The control
// is hidden for All and Custom (ok == false).
func JumpCaption(mode Mode) (caption string, ok bool) {
	switch mode {
	case Week:
		return "This week", true
	case Month:
		return "This month", true
	case Year:
		return "This year", true
	}
	return "", false
}

// weekStart returns the Monday of the ISO week containing t.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started six days earlier
	}
	return time.Date(t.Year(), t.Month(), t.Day()-(weekday-1), 0, 0, 0, 0, t.Location())
}

// addMonthsClamped shifts t by whole calendar months, clamping the day
// to the target month's length so Jan 31 + 1 month lands on Feb 28/29
// instead of overflowing into March.
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := firstOfTarget.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
