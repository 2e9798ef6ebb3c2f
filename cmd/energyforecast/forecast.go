package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/internal/usage"
)

var forecastDate string

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project usage and cost for the month",
	Long: `Fetches the month's half-hourly readings and projects total usage and
cost for the full month from the daily average so far.`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().StringVar(&forecastDate, "date", "", "Any date inside the month (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	ref := timeutil.NowJST()
	if forecastDate != "" {
		var err error
		ref, err = time.ParseInLocation("2006-01-02", forecastDate, timeutil.JST)
		if err != nil {
			return fmt.Errorf("parsing --date: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := newAPIClient(cfg, newLogger())
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	w := period.WindowFor(ref, period.Month)
	readings, err := client.HalfHourlyReadings(ctx, cfg.AccountNumber, w.From, w.To)
	if err != nil {
		return fmt.Errorf("fetching readings: %w", err)
	}

	f := usage.ForecastMonth(readings, ref, cfg.GetRate())
	if f == nil {
		fmt.Printf("No data for %s\n", timeutil.FormatJST(ref, "January 2006"))
		return nil
	}

	fmt.Printf("\nForecast for %s (day %d of %d, %.0f%%):\n",
		timeutil.FormatJST(ref, "January 2006"), f.CurrentDay, f.DaysInMonth, f.ProgressPercent)
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-16s  %8.1f kWh   ¥%s\n", "Usage so far", f.CurrentTotal, humanize.Commaf(roundYen(f.CurrentCost)))
	fmt.Printf("%-16s  %8.1f kWh\n", "Daily average", f.DailyAverage)
	fmt.Printf("%-16s  %8.1f kWh   ¥%s\n", "Month forecast", f.MonthlyForecast, humanize.Commaf(roundYen(f.ForecastCost)))
	fmt.Println("--------------------------------------------------")
	fmt.Printf("Rate: ¥%.1f/kWh\n", cfg.GetRate())
	return nil
}

// roundYen rounds a cost to the nearest whole yen.
func roundYen(v float64) float64 {
	return float64(int64(v + 0.5))
}
