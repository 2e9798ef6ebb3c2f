package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyforecast/pkg/models"
)

const testRate = 37.2

func TestForecastMonthEmpty(t *testing.T) {
	ref := jst(2024, time.March, 10, 0, 0)
	assert.Nil(t, forecastMonthAt(nil, ref, testRate, ref))

	// Readings exist but none in the target month.
	readings := fullDay(jst(2024, time.February, 10, 0, 0), 1.0)
	assert.Nil(t, forecastMonthAt(readings, ref, testRate, ref))
}

func TestForecastMonthFewDaysUsesSimpleAverage(t *testing.T) {
	// 3 distinct days of 24 kWh each, seen from day 5 of the month.
	rs := fullDay(jst(2024, time.March, 1, 0, 0), 1.0)
	rs = append(rs, fullDay(jst(2024, time.March, 2, 0, 0), 1.0)...)
	rs = append(rs, fullDay(jst(2024, time.March, 3, 0, 0), 1.0)...)

	now := jst(2024, time.March, 5, 12, 0)
	f := forecastMonthAt(rs, now, testRate, now)
	require.NotNil(t, f)

	assert.InDelta(t, 72.0, f.CurrentTotal, 1e-9)
	// Below the trimmed-average threshold: total / current day of month.
	assert.InDelta(t, 72.0/5.0, f.DailyAverage, 1e-9)
	assert.InDelta(t, 72.0/5.0*31, f.MonthlyForecast, 1e-9)
	assert.Equal(t, 31, f.DaysInMonth)
	assert.Equal(t, 5, f.CurrentDay)
	assert.InDelta(t, 5.0/31.0*100, f.ProgressPercent, 1e-9)
	assert.InDelta(t, 72.0*testRate, f.CurrentCost, 1e-6)
	assert.InDelta(t, f.MonthlyForecast*testRate, f.ForecastCost, 1e-6)
}

func TestForecastMonthTrimmedAverageSuppressesOutliers(t *testing.T) {
	// Nine ordinary days of 24 kWh and one 10x outlier day.
	var rs []models.Reading
	for day := 1; day <= 9; day++ {
		rs = append(rs, fullDay(jst(2024, time.March, day, 0, 0), 1.0)...)
	}
	rs = append(rs, fullDay(jst(2024, time.March, 10, 0, 0), 10.0)...)

	now := jst(2024, time.March, 10, 23, 59)
	f := forecastMonthAt(rs, now, testRate, now)
	require.NotNil(t, f)

	// 10 daily totals sorted descending: 240, then nine 24s. The middle five
	// are all ordinary days, so the outlier does not move the average.
	assert.InDelta(t, 24.0, f.DailyAverage, 1e-9)
	assert.InDelta(t, 24.0*31, f.MonthlyForecast, 1e-9)

	// A simple average would have been pulled up well past the trimmed one.
	simple := f.CurrentTotal / float64(f.CurrentDay)
	assert.Greater(t, simple, f.DailyAverage+10)
}

func TestForecastMonthExactlyAtThreshold(t *testing.T) {
	// Six distinct days switches to the trimmed average.
	var rs []models.Reading
	values := []float64{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}
	for day, v := range values {
		rs = append(rs, fullDay(jst(2024, time.March, day+1, 0, 0), v)...)
	}

	now := jst(2024, time.March, 6, 23, 59)
	f := forecastMonthAt(rs, now, testRate, now)
	require.NotNil(t, f)

	// Daily totals descending: 144, 120, 96, 72, 48, 24. Middle five start at
	// index (6-5)/2 = 0, so the average covers 144..48.
	assert.InDelta(t, (144.0+120+96+72+48)/5, f.DailyAverage, 1e-9)
}

func TestForecastMonthIgnoresOtherMonths(t *testing.T) {
	rs := fullDay(jst(2024, time.March, 1, 0, 0), 1.0)
	rs = append(rs, fullDay(jst(2024, time.February, 28, 0, 0), 5.0)...)

	now := jst(2024, time.March, 2, 0, 0)
	f := forecastMonthAt(rs, now, testRate, now)
	require.NotNil(t, f)
	assert.InDelta(t, 24.0, f.CurrentTotal, 1e-9)
}
