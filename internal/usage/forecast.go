package usage

import (
	"sort"
	"time"

	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/pkg/models"
)

// With this many or more distinct days of data, the daily average is taken
// over the middle trimmedSampleSize daily totals (sorted descending),
// discarding unusually high and unusually low days.
const (
	trimmedMinDays    = 6
	trimmedSampleSize = 5
)

// Forecast is the monthly usage/cost projection.
type Forecast struct {
	CurrentTotal    float64
	DailyAverage    float64
	MonthlyForecast float64
	DaysInMonth     int
	CurrentDay      int
	ProgressPercent float64
	CurrentCost     float64
	ForecastCost    float64
}

// ForecastMonth projects usage and cost for the calendar month containing
// ref. It returns nil when the month has no readings.
func ForecastMonth(readings []models.Reading, ref time.Time, rate float64) *Forecast {
	return forecastMonthAt(readings, ref, rate, timeutil.NowJST())
}

func forecastMonthAt(readings []models.Reading, ref time.Time, rate float64, now time.Time) *Forecast {
	ref = timeutil.ToJST(ref)

	dailyTotals := make(map[int]float64)
	var currentTotal float64
	for _, r := range readings {
		jst := timeutil.ToJST(r.StartAt)
		if jst.Year() != ref.Year() || jst.Month() != ref.Month() {
			continue
		}
		v := coerce(r.Value)
		dailyTotals[jst.Day()] += v
		currentTotal += v
	}
	if len(dailyTotals) == 0 {
		return nil
	}

	daysInMonth := period.DaysIn(ref)
	currentDay := timeutil.ToJST(now).Day()

	var dailyAverage float64
	if len(dailyTotals) >= trimmedMinDays {
		totals := make([]float64, 0, len(dailyTotals))
		for _, v := range dailyTotals {
			totals = append(totals, v)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(totals)))
		start := (len(totals) - trimmedSampleSize) / 2
		var sum float64
		for _, v := range totals[start : start+trimmedSampleSize] {
			sum += v
		}
		dailyAverage = sum / trimmedSampleSize
	} else if currentDay > 0 {
		dailyAverage = currentTotal / float64(currentDay)
	}

	monthlyForecast := dailyAverage * float64(daysInMonth)
	return &Forecast{
		CurrentTotal:    currentTotal,
		DailyAverage:    dailyAverage,
		MonthlyForecast: monthlyForecast,
		DaysInMonth:     daysInMonth,
		CurrentDay:      currentDay,
		ProgressPercent: float64(currentDay) / float64(daysInMonth) * 100,
		CurrentCost:     currentTotal * rate,
		ForecastCost:    monthlyForecast * rate,
	}
}
