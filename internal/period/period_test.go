package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewStateStartsOnCurrentMonth(t *testing.T) {
	s := NewState(date(2025, time.June, 15))
	if s.Mode != Month {
		t.Fatalf("initial mode = %v, want month", s.Mode)
	}
	if s.DateFrom != "2025-06-01" || s.DateTo != "2025-06-30" {
		t.Errorf("initial bounds = %s..%s, want 2025-06-01..2025-06-30", s.DateFrom, s.DateTo)
	}
}

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		name     string
		ref      time.Time
		from, to string
	}{
		{name: "ordinary month", ref: date(2025, time.June, 15), from: "2025-06-01", to: "2025-06-30"},
		{name: "31-day month", ref: date(2025, time.January, 1), from: "2025-01-01", to: "2025-01-31"},
		{name: "leap february", ref: date(2024, time.February, 10), from: "2024-02-01", to: "2024-02-29"},
		{name: "non-leap february", ref: date(2023, time.February, 28), from: "2023-02-01", to: "2023-02-28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := Bounds(Month, tt.ref)
			if from != tt.from || to != tt.to {
				t.Errorf("Bounds(Month, %s) = %s..%s, want %s..%s",
					tt.ref.Format("2006-01-02"), from, to, tt.from, tt.to)
			}
		})
	}
}

func TestWeekBoundsMondayThroughSunday(t *testing.T) {
	tests := []struct {
		name     string
		ref      time.Time
		from, to string
	}{
		{name: "mid-week wednesday", ref: date(2025, time.June, 11), from: "2025-06-09", to: "2025-06-15"},
		{name: "monday is its own start", ref: date(2025, time.June, 9), from: "2025-06-09", to: "2025-06-15"},
		{name: "sunday closes the week", ref: date(2025, time.June, 15), from: "2025-06-09", to: "2025-06-15"},
		{name: "week spanning a month edge", ref: date(2025, time.July, 1), from: "2025-06-30", to: "2025-07-06"},
		{name: "week spanning a year edge", ref: date(2024, time.December, 31), from: "2024-12-30", to: "2025-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := Bounds(Week, tt.ref)
			if from != tt.from || to != tt.to {
				t.Errorf("Bounds(Week, %s) = %s..%s, want %s..%s",
					tt.ref.Format("2006-01-02"), from, to, tt.from, tt.to)
			}
			start, _ := time.Parse("2006-01-02", from)
			end, _ := time.Parse("2006-01-02", to)
			if end.Sub(start) != 6*24*time.Hour {
				t.Errorf("week span = %v, want exactly 6 days", end.Sub(start))
			}
		})
	}
}

func TestISOWeekLabels(t *testing.T) {
	tests := []struct {
		ref  time.Time
		want string
	}{
		// 2024-01-01 is a Monday: week 1 of week-year 2024.
		{ref: date(2024, time.January, 1), want: "Week 1 / 2024"},
		// 2023-01-01 is a Sunday: still week 52 of week-year 2022.
		{ref: date(2023, time.January, 1), want: "Week 52 / 2022"},
	}

	for _, tt := range tests {
		if got := Label(Week, tt.ref); got != tt.want {
			t.Errorf("Label(Week, %s) = %q, want %q", tt.ref.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestLabels(t *testing.T) {
	ref := date(2025, time.June, 15)
	tests := []struct {
		mode Mode
		want string
	}{
		{mode: Month, want: "June 2025"},
		{mode: Year, want: "2025"},
		{mode: All, want: "All time"},
		{mode: Custom, want: "Custom range"},
	}
	for _, tt := range tests {
		if got := Label(tt.mode, ref); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestYearBounds(t *testing.T) {
	from, to := Bounds(Year, date(2025, time.June, 15))
	if from != "2025-01-01" || to != "2025-12-31" {
		t.Errorf("Bounds(Year) = %s..%s, want 2025-01-01..2025-12-31", from, to)
	}
}

func TestAllModeIsUnboundedAndNotNavigable(t *testing.T) {
	s := NewState(date(2025, time.June, 15)).Apply(All, date(2025, time.June, 15))
	if s.DateFrom != "" || s.DateTo != "" {
		t.Errorf("all-mode bounds = %q..%q, want empty", s.DateFrom, s.DateTo)
	}
	if prev := s.Previous(); prev != s {
		t.Error("Previous() changed state in all mode")
	}
	if next := s.Next(); next != s {
		t.Error("Next() changed state in all mode")
	}
	if _, ok := JumpCaption(All); ok {
		t.Error("JumpCaption(All) should be hidden")
	}
}

func TestManualEditDemotesToCustom(t *testing.T) {
	s := NewState(date(2025, time.June, 15))
	before := s.DateTo

	s = s.WithBound(BoundFrom, "2025-06-10")
	if s.Mode != Custom {
		t.Fatalf("mode after manual edit = %v, want custom", s.Mode)
	}
	if s.DateFrom != "2025-06-10" {
		t.Errorf("date_from = %s, want 2025-06-10", s.DateFrom)
	}
	if s.DateTo != before {
		t.Errorf("date_to changed to %s, want untouched %s", s.DateTo, before)
	}

	// Navigation is a no-op once custom; there is no promotion back.
	if moved := s.Next(); moved != s {
		t.Error("Next() changed state in custom mode")
	}
}

func TestCustomResetUpdatesReferenceOnly(t *testing.T) {
	s := NewState(date(2025, time.June, 15)).WithBound(BoundTo, "2025-06-20")
	now := date(2025, time.August, 1)

	s2 := s.ResetToCurrent(now)
	if !s2.Reference.Equal(now) {
		t.Errorf("reference = %v, want %v", s2.Reference, now)
	}
	if s2.DateFrom != s.DateFrom || s2.DateTo != s.DateTo {
		t.Errorf("bounds changed on reset in custom mode: %s..%s", s2.DateFrom, s2.DateTo)
	}
}

func TestNavigationRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		ref  time.Time
	}{
		{name: "week", mode: Week, ref: date(2025, time.June, 11)},
		{name: "month", mode: Month, ref: date(2025, time.June, 15)},
		{name: "month from the 31st", mode: Month, ref: date(2025, time.January, 31)},
		{name: "year", mode: Year, ref: date(2025, time.June, 15)},
		{name: "year from leap day", mode: Year, ref: date(2024, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(tt.ref).Apply(tt.mode, tt.ref)
			rt := s.Previous().Next()
			if rt.DateFrom != s.DateFrom || rt.DateTo != s.DateTo {
				t.Errorf("round trip bounds = %s..%s, want %s..%s",
					rt.DateFrom, rt.DateTo, s.DateFrom, s.DateTo)
			}
		})
	}
}

func TestMonthNavigationDoesNotOverflow(t *testing.T) {
	// Jan 31 previous/next must move one calendar month, not skip one.
	s := NewState(date(2025, time.January, 31))
	next := s.Next()
	if next.DateFrom != "2025-02-01" || next.DateTo != "2025-02-28" {
		t.Errorf("next month from Jan 31 = %s..%s, want February", next.DateFrom, next.DateTo)
	}
	prev := s.Previous()
	if prev.DateFrom != "2024-12-01" || prev.DateTo != "2024-12-31" {
		t.Errorf("previous month from Jan 31 = %s..%s, want December", prev.DateFrom, prev.DateTo)
	}
}

func TestWeekNavigationShiftsSevenDays(t *testing.T) {
	s := NewState(date(2025, time.June, 11)).Apply(Week, date(2025, time.June, 11))
	prev := s.Previous()
	if prev.DateFrom != "2025-06-02" || prev.DateTo != "2025-06-08" {
		t.Errorf("previous week = %s..%s, want 2025-06-02..2025-06-08", prev.DateFrom, prev.DateTo)
	}
}

func TestResetToCurrentKeepsMode(t *testing.T) {
	s := NewState(date(2025, time.June, 15)).Apply(Year, date(2025, time.June, 15)).Previous()
	s = s.ResetToCurrent(date(2025, time.June, 15))
	if s.Mode != Year {
		t.Errorf("mode after reset = %v, want year", s.Mode)
	}
	if s.DateFrom != "2025-01-01" || s.DateTo != "2025-12-31" {
		t.Errorf("bounds after reset = %s..%s, want 2025", s.DateFrom, s.DateTo)
	}
}
