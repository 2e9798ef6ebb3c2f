package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listSince string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived usage data",
	Long:  `Displays archived electricity readings from the database, summed per day.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "Only list days since this date (YYYY-MM-DD or relative like 7d)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	totals, err := db.ListDailyTotals()
	if err != nil {
		return fmt.Errorf("listing daily totals: %w", err)
	}

	if listSince != "" {
		since, err := parseDate(listSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		cutoff := since.Format("2006-01-02")
		filtered := totals[:0]
		for _, day := range totals {
			if day.Date.Format("2006-01-02") >= cutoff {
				filtered = append(filtered, day)
			}
		}
		totals = filtered
	}

	if len(totals) == 0 {
		fmt.Println("No data found")
		return nil
	}

	fmt.Println("\nDaily Usage:")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-12s  %10s  %10s\n", "Date", "kWh", "Readings")
	fmt.Println("--------------------------------------------------")

	var total float64
	var count int
	for _, day := range totals {
		fmt.Printf("%-12s  %10.2f  %10d\n", day.Date.Format("2006-01-02"), day.KWh, day.Readings)
		total += day.KWh
		count += day.Readings
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("Total: %.2f kWh (%d readings over %d days)\n", total, count, len(totals))
	return nil
}
