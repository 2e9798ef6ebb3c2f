package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyforecast/pkg/models"
)

func testDB(t *testing.T) *DB {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func halfHours(start time.Time, values ...float64) []models.Reading {
	readings := make([]models.Reading, len(values))
	for i, v := range values {
		readings[i] = models.Reading{
			StartAt:             start.Add(time.Duration(i) * 30 * time.Minute),
			Value:               v,
			ConsumptionRateBand: "OFF_PEAK",
			ConsumptionStep:     1,
			CostEstimate:        v * 37.2,
		}
	}
	return readings
}

func TestInsertAndListRange(t *testing.T) {
	db := testDB(t)

	start := time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC)
	inserted, err := db.InsertReadings(halfHours(start, 0.5, 0.6, 0.7))
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	// The range is half-open, so the last reading is excluded.
	got, err := db.ListRange(start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[0].Value)
	assert.Equal(t, "OFF_PEAK", got[0].ConsumptionRateBand)
	assert.Equal(t, 1, got[0].ConsumptionStep)
	assert.True(t, start.Equal(got[0].StartAt))
	assert.Equal(t, 0.6, got[1].Value)
}

func TestInsertIgnoresDuplicates(t *testing.T) {
	db := testDB(t)

	start := time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC)
	_, err := db.InsertReadings(halfHours(start, 0.5, 0.6))
	require.NoError(t, err)

	// Re-inserting the same window does not create new rows.
	_, err = db.InsertReadings(halfHours(start, 9.9, 9.9))
	require.NoError(t, err)

	got, err := db.ListRange(start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[0].Value, "first write wins")
}

func TestListDailyTotals(t *testing.T) {
	db := testDB(t)

	// 2024-03-08T15:00Z is already 2024-03-09 in JST, so these two readings
	// land on different JST days despite the same UTC date.
	_, err := db.InsertReadings([]models.Reading{
		{StartAt: time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC), Value: 1.0},
		{StartAt: time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC), Value: 2.0},
		{StartAt: time.Date(2024, time.March, 8, 15, 30, 0, 0, time.UTC), Value: 3.0},
	})
	require.NoError(t, err)

	totals, err := db.ListDailyTotals()
	require.NoError(t, err)
	require.Len(t, totals, 2)

	// Most recent day first.
	assert.Equal(t, "2024-03-09", totals[0].Date.Format("2006-01-02"))
	assert.InDelta(t, 5.0, totals[0].KWh, 1e-9)
	assert.Equal(t, 2, totals[0].Readings)
	assert.Equal(t, "2024-03-08", totals[1].Date.Format("2006-01-02"))
	assert.InDelta(t, 1.0, totals[1].KWh, 1e-9)
}

func TestPublishLifecycle(t *testing.T) {
	db := testDB(t)

	start := time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC)
	_, err := db.InsertReadings(halfHours(start, 0.5, 0.6))
	require.NoError(t, err)

	unpublished, err := db.ListUnpublished()
	require.NoError(t, err)
	require.Len(t, unpublished, 2)

	require.NoError(t, db.MarkPublished(unpublished[0].ID))

	unpublished, err = db.ListUnpublished()
	require.NoError(t, err)
	require.Len(t, unpublished, 1)
	assert.Equal(t, 0.6, unpublished[0].Value)

	all, err := db.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
