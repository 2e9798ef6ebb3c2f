// Package period computes the half-open fetch windows behind each dashboard
// view and the reference-date arithmetic used for navigation and prefetch.
package period

import (
	"fmt"
	"time"

	"energyforecast/internal/timeutil"
)

// Granularity is the display aggregation level of the dashboard.
type Granularity int

const (
	Day Granularity = iota
	Week
	Month
	Year
)

// String returns the lowercase name used in CLI flags and cache keys.
func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	}
	panic(fmt.Sprintf("period: unknown granularity %d", int(g)))
}

// ParseGranularity converts a flag value into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	case "year":
		return Year, nil
	}
	return 0, fmt.Errorf("unknown granularity: %s (available: day, week, month, year)", s)
}

// Window is the half-open interval [From, To) fetched for one view.
type Window struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
}

// Equal reports whether two windows cover the same interval at the same
// granularity.
func (w Window) Equal(o Window) bool {
	return w.Granularity == o.Granularity && w.From.Equal(o.From) && w.To.Equal(o.To)
}

// IsZero reports whether the window has never been set.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// WindowFor computes the fetch window for a reference date.
//
// The day view shows the prior calendar day (the provider reports with a
// one-day lag), so its window is [startOfDay(ref-1d), startOfDay(ref)).
// Weeks start on Sunday. The year window is clamped so To never passes the
// current time.
func WindowFor(ref time.Time, g Granularity) Window {
	return windowAt(ref, g, timeutil.NowJST())
}

func windowAt(ref time.Time, g Granularity, now time.Time) Window {
	switch g {
	case Day:
		to := startOfDay(ref)
		return Window{From: to.AddDate(0, 0, -1), To: to, Granularity: g}
	case Week:
		from := startOfWeek(ref)
		return Window{From: from, To: from.AddDate(0, 0, 7), Granularity: g}
	case Month:
		from := startOfMonth(ref)
		return Window{From: from, To: from.AddDate(0, 1, 0), Granularity: g}
	case Year:
		from := startOfYear(ref)
		to := from.AddDate(1, 0, 0)
		// Clamp the current year at now; future years keep the full span so
		// To always stays after From.
		if to.After(now) && now.After(from) {
			to = now
		}
		return Window{From: from, To: to, Granularity: g}
	}
	panic(fmt.Sprintf("period: unknown granularity %d", int(g)))
}

// NextReference advances a reference date by one granularity unit.
// Month and year steps clamp to the last valid day rather than letting the
// calendar normalize (Jan 31 + 1 month is Feb 28/29, not Mar 2/3).
func NextReference(ref time.Time, g Granularity) time.Time {
	return step(ref, g, 1)
}

// PrevReference moves a reference date back by one granularity unit.
func PrevReference(ref time.Time, g Granularity) time.Time {
	return step(ref, g, -1)
}

func step(ref time.Time, g Granularity, dir int) time.Time {
	switch g {
	case Day:
		return ref.AddDate(0, 0, dir)
	case Week:
		return ref.AddDate(0, 0, 7*dir)
	case Month:
		return addMonthsClamped(ref, dir)
	case Year:
		return addYearsClamped(ref, dir)
	}
	panic(fmt.Sprintf("period: unknown granularity %d", int(g)))
}

func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func addYearsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	if last := daysIn(y+n, m, t.Location()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(y+n, m, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// DaysIn returns the number of days in the calendar month containing t.
func DaysIn(t time.Time) int {
	return daysIn(t.Year(), t.Month(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, -int(t.Weekday()))
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}
