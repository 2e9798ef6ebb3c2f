// Package store archives fetched half-hourly readings in a local SQLite
// database so they can be listed and published without refetching.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"energyforecast/pkg/models"
)

// StoredReading is a reading plus its archive row ID.
type StoredReading struct {
	ID int
	models.Reading
}

// DailyTotal is one day's summed consumption.
type DailyTotal struct {
	Date     time.Time
	KWh      float64
	Readings int
}

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_at TEXT NOT NULL UNIQUE,
		value REAL NOT NULL,
		rate_band TEXT,
		consumption_step INTEGER,
		cost_estimate REAL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_readings_start_at ON readings(start_at);
	CREATE INDEX IF NOT EXISTS idx_readings_published ON readings(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertReadings archives a batch of readings, skipping duplicates via the
// UNIQUE constraint on start_at. It returns the number of rows processed.
func (db *DB) InsertReadings(readings []models.Reading) (int, error) {
	query := `
	INSERT OR IGNORE INTO readings (start_at, value, rate_band, consumption_step, cost_estimate, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	createdAt := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, r := range readings {
		_, err := db.conn.Exec(query,
			r.StartAt.UTC().Format(time.RFC3339), r.Value, r.ConsumptionRateBand,
			r.ConsumptionStep, r.CostEstimate, createdAt)
		if err != nil {
			return inserted, fmt.Errorf("inserting reading: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// ListRange retrieves archived readings with start_at in [from, to), ordered
// by start time.
func (db *DB) ListRange(from, to time.Time) ([]models.Reading, error) {
	query := `
	SELECT start_at, value, rate_band, consumption_step, cost_estimate
	FROM readings
	WHERE start_at >= ? AND start_at < ?
	ORDER BY start_at
	`

	rows, err := db.conn.Query(query, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListDailyTotals sums archived readings per UTC+9 calendar day, most recent
// first.
func (db *DB) ListDailyTotals() ([]DailyTotal, error) {
	// start_at is stored as UTC RFC3339; shift by 9h to bucket on JST days.
	query := `
	SELECT date(datetime(start_at, '+9 hours')) AS day, SUM(value), COUNT(*)
	FROM readings
	GROUP BY day
	ORDER BY day DESC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying daily totals: %w", err)
	}
	defer rows.Close()

	var results []DailyTotal
	for rows.Next() {
		var dayStr string
		var total DailyTotal
		if err := rows.Scan(&dayStr, &total.KWh, &total.Readings); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		total.Date, err = time.Parse("2006-01-02", dayStr)
		if err != nil {
			return nil, fmt.Errorf("parsing day: %w", err)
		}
		results = append(results, total)
	}
	return results, rows.Err()
}

// ListUnpublished retrieves archived readings not yet pushed to Home
// Assistant, oldest first so backfills arrive in order.
func (db *DB) ListUnpublished() ([]StoredReading, error) {
	query := `
	SELECT id, start_at, value, rate_band, consumption_step, cost_estimate
	FROM readings
	WHERE published = 0
	ORDER BY start_at
	`
	return db.listStored(query)
}

// ListAll retrieves every archived reading, oldest first.
func (db *DB) ListAll() ([]StoredReading, error) {
	query := `
	SELECT id, start_at, value, rate_band, consumption_step, cost_estimate
	FROM readings
	ORDER BY start_at
	`
	return db.listStored(query)
}

func (db *DB) listStored(query string) ([]StoredReading, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []StoredReading
	for rows.Next() {
		var sr StoredReading
		var startStr string
		var band sql.NullString
		var step sql.NullInt64
		var cost sql.NullFloat64
		if err := rows.Scan(&sr.ID, &startStr, &sr.Value, &band, &step, &cost); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		sr.StartAt, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, fmt.Errorf("parsing start_at: %w", err)
		}
		sr.ConsumptionRateBand = band.String
		sr.ConsumptionStep = int(step.Int64)
		sr.CostEstimate = cost.Float64
		results = append(results, sr)
	}
	return results, rows.Err()
}

// MarkPublished marks a reading as published
func (db *DB) MarkPublished(id int) error {
	query := `UPDATE readings SET published = 1 WHERE id = ?`
	if _, err := db.conn.Exec(query, id); err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (models.Reading, error) {
	var r models.Reading
	var startStr string
	var band sql.NullString
	var step sql.NullInt64
	var cost sql.NullFloat64

	if err := row.Scan(&startStr, &r.Value, &band, &step, &cost); err != nil {
		return r, fmt.Errorf("scanning row: %w", err)
	}
	var err error
	r.StartAt, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		return r, fmt.Errorf("parsing start_at: %w", err)
	}
	r.ConsumptionRateBand = band.String
	r.ConsumptionStep = int(step.Int64)
	r.CostEstimate = cost.Float64
	return r, nil
}
