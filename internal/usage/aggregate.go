// Package usage buckets raw half-hourly readings into the series shown by
// each dashboard view and computes the monthly cost/usage forecast.
package usage

import (
	"fmt"
	"math"
	"time"

	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/pkg/models"
)

// Bucket is one bar of an aggregated series.
type Bucket struct {
	Label      string
	ShortLabel string
	Value      float64
	Date       time.Time
}

var (
	weekdays      = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	shortWeekdays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
)

// BucketFor dispatches to the bucketing function for a granularity.
func BucketFor(readings []models.Reading, g period.Granularity, ref time.Time) []Bucket {
	switch g {
	case period.Day:
		return BucketForDay(readings)
	case period.Week:
		return BucketForWeek(readings)
	case period.Month:
		return BucketForMonth(readings, ref)
	case period.Year:
		return BucketForYear(readings)
	}
	panic(fmt.Sprintf("usage: unknown granularity %d", int(g)))
}

// BucketForDay returns 48 ordered buckets, one per 30-minute slot from
// 00:00-00:30 through 23:30-00:00. A slot with no reading has value 0.
func BucketForDay(readings []models.Reading) []Bucket {
	var baseDay time.Time
	values := make(map[int]float64, len(readings))
	for _, r := range readings {
		jst := timeutil.ToJST(r.StartAt)
		slot := jst.Hour()*2 + jst.Minute()/30
		values[slot] = coerce(r.Value)
		day := startOfDay(jst)
		if baseDay.IsZero() || day.Before(baseDay) {
			baseDay = day
		}
	}

	buckets := make([]Bucket, 48)
	for i := range buckets {
		start := time.Duration(i) * 30 * time.Minute
		end := start + 30*time.Minute
		startLabel := slotLabel(start)
		buckets[i] = Bucket{
			Label:      startLabel + "-" + slotLabel(end),
			ShortLabel: startLabel,
			Value:      values[i],
		}
		if !baseDay.IsZero() {
			buckets[i].Date = baseDay.Add(start)
		}
	}
	return buckets
}

func slotLabel(offset time.Duration) string {
	h := int(offset.Hours()) % 24
	m := int(offset.Minutes()) % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// BucketForWeek returns 7 buckets, Sunday through Saturday, each the sum of
// all readings whose JST date falls on that weekday.
func BucketForWeek(readings []models.Reading) []Bucket {
	buckets := make([]Bucket, 7)
	for i := range buckets {
		buckets[i] = Bucket{Label: weekdays[i], ShortLabel: shortWeekdays[i]}
	}
	for _, r := range readings {
		jst := timeutil.ToJST(r.StartAt)
		day := int(jst.Weekday())
		buckets[day].Value += coerce(r.Value)
		if buckets[day].Date.IsZero() {
			buckets[day].Date = startOfDay(jst)
		}
	}
	return buckets
}

// BucketForMonth returns one bucket per calendar day of ref's month, each
// the sum of that day's readings (0 when none).
func BucketForMonth(readings []models.Reading, ref time.Time) []Bucket {
	ref = timeutil.ToJST(ref)
	totals := make(map[int]float64)
	for _, r := range readings {
		jst := timeutil.ToJST(r.StartAt)
		if jst.Year() == ref.Year() && jst.Month() == ref.Month() {
			totals[jst.Day()] += coerce(r.Value)
		}
	}

	days := period.DaysIn(ref)
	buckets := make([]Bucket, days)
	for i := range buckets {
		day := i + 1
		buckets[i] = Bucket{
			Label: fmt.Sprintf("%d", day),
			Value: totals[day],
			Date:  time.Date(ref.Year(), ref.Month(), day, 0, 0, 0, 0, timeutil.JST),
		}
	}
	return buckets
}

// BucketForYear returns 12 buckets, January through December, each the sum
// of that month's readings within the fetched year. The year is taken from
// the first reading.
func BucketForYear(readings []models.Reading) []Bucket {
	year := timeutil.NowJST().Year()
	if len(readings) > 0 {
		year = timeutil.ToJST(readings[0].StartAt).Year()
	}

	totals := make(map[time.Month]float64)
	for _, r := range readings {
		jst := timeutil.ToJST(r.StartAt)
		if jst.Year() == year {
			totals[jst.Month()] += coerce(r.Value)
		}
	}

	buckets := make([]Bucket, 12)
	for i := range buckets {
		month := time.Month(i + 1)
		buckets[i] = Bucket{
			Label:      fmt.Sprintf("%d/%02d", year, int(month)),
			ShortLabel: month.String()[:3],
			Value:      totals[month],
			Date:       time.Date(year, month, 1, 0, 0, 0, 0, timeutil.JST),
		}
	}
	return buckets
}

// Total sums bucket values.
func Total(buckets []Bucket) float64 {
	var total float64
	for _, b := range buckets {
		total += coerce(b.Value)
	}
	return total
}

// coerce keeps NaN and infinities out of bucket totals.
func coerce(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
