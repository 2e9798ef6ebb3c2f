package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyforecast/internal/timeutil"
)

func jst(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, timeutil.JST)
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"day", "week", "month", "year"} {
		g, err := ParseGranularity(s)
		require.NoError(t, err)
		assert.Equal(t, s, g.String())
	}

	_, err := ParseGranularity("fortnight")
	assert.Error(t, err)
}

func TestWindowAt(t *testing.T) {
	now := jst(2024, time.March, 10, 12, 30)

	tests := []struct {
		name string
		ref  time.Time
		g    Granularity
		from time.Time
		to   time.Time
	}{
		{
			name: "day view shows the prior calendar day",
			ref:  jst(2024, time.March, 10, 15, 4),
			g:    Day,
			from: jst(2024, time.March, 9, 0, 0),
			to:   jst(2024, time.March, 10, 0, 0),
		},
		{
			name: "week starts on Sunday",
			ref:  jst(2024, time.March, 13, 9, 0), // a Wednesday
			g:    Week,
			from: jst(2024, time.March, 10, 0, 0),
			to:   jst(2024, time.March, 17, 0, 0),
		},
		{
			name: "week ref on Sunday is its own start",
			ref:  jst(2024, time.March, 10, 0, 0),
			g:    Week,
			from: jst(2024, time.March, 10, 0, 0),
			to:   jst(2024, time.March, 17, 0, 0),
		},
		{
			name: "month spans the calendar month",
			ref:  jst(2024, time.February, 14, 8, 0),
			g:    Month,
			from: jst(2024, time.February, 1, 0, 0),
			to:   jst(2024, time.March, 1, 0, 0),
		},
		{
			name: "current year is clamped at now",
			ref:  jst(2024, time.March, 10, 12, 30),
			g:    Year,
			from: jst(2024, time.January, 1, 0, 0),
			to:   now,
		},
		{
			name: "past year keeps the full span",
			ref:  jst(2023, time.June, 1, 0, 0),
			g:    Year,
			from: jst(2023, time.January, 1, 0, 0),
			to:   jst(2024, time.January, 1, 0, 0),
		},
		{
			name: "future year keeps the full span",
			ref:  jst(2025, time.June, 1, 0, 0),
			g:    Year,
			from: jst(2025, time.January, 1, 0, 0),
			to:   jst(2026, time.January, 1, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := windowAt(tt.ref, tt.g, now)
			assert.True(t, tt.from.Equal(w.From), "from: want %v, got %v", tt.from, w.From)
			assert.True(t, tt.to.Equal(w.To), "to: want %v, got %v", tt.to, w.To)
			assert.Equal(t, tt.g, w.Granularity)
		})
	}
}

func TestWindowToAlwaysAfterFrom(t *testing.T) {
	now := jst(2024, time.March, 10, 12, 30)
	refs := []time.Time{
		jst(2020, time.January, 1, 0, 0),
		jst(2024, time.January, 1, 0, 0),
		jst(2024, time.March, 10, 12, 30),
		jst(2024, time.December, 31, 23, 59),
		jst(2030, time.July, 15, 6, 0),
	}
	for _, ref := range refs {
		for _, g := range []Granularity{Day, Week, Month, Year} {
			w := windowAt(ref, g, now)
			assert.True(t, w.To.After(w.From), "%s window for %v: %v..%v", g, ref, w.From, w.To)
		}
	}
}

func TestStepRoundTrip(t *testing.T) {
	ref := jst(2024, time.March, 15, 10, 0)
	for _, g := range []Granularity{Day, Week, Month, Year} {
		back := PrevReference(NextReference(ref, g), g)
		assert.True(t, ref.Equal(back), "%s: %v round-tripped to %v", g, ref, back)

		forward := NextReference(PrevReference(ref, g), g)
		assert.True(t, ref.Equal(forward), "%s: %v round-tripped to %v", g, ref, forward)
	}
}

func TestStepMonthClampsToLastDay(t *testing.T) {
	// Jan 31 + 1 month lands on the end of February, not March.
	next := NextReference(jst(2024, time.January, 31, 0, 0), Month)
	assert.True(t, jst(2024, time.February, 29, 0, 0).Equal(next))

	next = NextReference(jst(2023, time.January, 31, 0, 0), Month)
	assert.True(t, jst(2023, time.February, 28, 0, 0).Equal(next))

	// The clamp makes the round trip lossy from a clamped date.
	back := PrevReference(next, Month)
	assert.True(t, jst(2023, time.January, 28, 0, 0).Equal(back))
}

func TestStepYearClampsLeapDay(t *testing.T) {
	next := NextReference(jst(2024, time.February, 29, 0, 0), Year)
	assert.True(t, jst(2025, time.February, 28, 0, 0).Equal(next))
}

func TestStepAcrossYearBoundary(t *testing.T) {
	next := NextReference(jst(2024, time.December, 31, 0, 0), Day)
	assert.True(t, jst(2025, time.January, 1, 0, 0).Equal(next))

	prev := PrevReference(jst(2024, time.January, 3, 0, 0), Week)
	assert.True(t, jst(2023, time.December, 27, 0, 0).Equal(prev))
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(jst(2024, time.February, 10, 0, 0)))
	assert.Equal(t, 28, DaysIn(jst(2023, time.February, 10, 0, 0)))
	assert.Equal(t, 31, DaysIn(jst(2024, time.January, 1, 0, 0)))
	assert.Equal(t, 30, DaysIn(jst(2024, time.April, 30, 0, 0)))
}

func TestWindowEqual(t *testing.T) {
	a := windowAt(jst(2024, time.March, 10, 9, 0), Day, jst(2024, time.March, 10, 9, 0))
	b := windowAt(jst(2024, time.March, 10, 18, 0), Day, jst(2024, time.March, 10, 18, 0))
	assert.True(t, a.Equal(b), "same day at different times produces the same window")

	c := windowAt(jst(2024, time.March, 11, 9, 0), Day, jst(2024, time.March, 11, 9, 0))
	assert.False(t, a.Equal(c))
	assert.False(t, a.IsZero())
	assert.True(t, Window{}.IsZero())
}
