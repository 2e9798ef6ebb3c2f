package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"energyforecast/internal/dashboard"
	"energyforecast/internal/tui"
)

var dashboardLogFile string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive usage dashboard",
	Long: `Opens a terminal dashboard of electricity usage with day, week, month
and year views. Adjacent periods are prefetched so navigation is instant,
and fetched windows are cached locally for three hours.`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardLogFile, "log-file", "", "Write debug logs to this file (stderr is taken over by the UI)")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The alternate screen owns the terminal, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if dashboardLogFile != "" {
		f, err := os.OpenFile(dashboardLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := log.NewWithOptions(logOut, log.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	loginCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Login(loginCtx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	readingsCache := openCache(logger)
	controller := dashboard.New(client, readingsCache, cfg.AccountNumber, logger)
	defer controller.Close()

	model := tui.NewModel(controller, client.Login, cfg.GetRate())
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
