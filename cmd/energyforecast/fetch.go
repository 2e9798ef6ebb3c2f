package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/pkg/models"
)

var (
	fetchDate string
	fetchView string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch usage data from the API",
	Long: `Fetches half-hourly electricity readings for one period window from the
Kraken API and archives them in the local SQLite database. Duplicate
readings are skipped.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "Reference date (YYYY-MM-DD, default today)")
	fetchCmd.Flags().StringVar(&fetchView, "view", "day", "Period window: day, week, month or year")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	g, err := period.ParseGranularity(fetchView)
	if err != nil {
		return err
	}

	ref := timeutil.NowJST()
	if fetchDate != "" {
		ref, err = time.ParseInLocation("2006-01-02", fetchDate, timeutil.JST)
		if err != nil {
			return fmt.Errorf("parsing --date: %w", err)
		}
	}
	w := period.WindowFor(ref, g)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	fmt.Printf("Fetching %s window %s to %s...\n", g,
		timeutil.FormatJST(w.From, "2006-01-02 15:04"), timeutil.FormatJST(w.To, "2006-01-02 15:04"))

	readings, err := client.HalfHourlyReadings(ctx, cfg.AccountNumber, w.From, w.To)
	if err != nil {
		return fmt.Errorf("fetching readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Println("No data found")
		return nil
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	processed, err := db.InsertReadings(readings)
	if err != nil {
		return fmt.Errorf("inserting readings: %w", err)
	}

	fmt.Printf("✓ Processed %d readings (%.2f kWh, duplicates automatically skipped by database)\n",
		processed, models.TotalValue(readings))
	return nil
}
