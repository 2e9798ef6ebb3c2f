package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"energyforecast/internal/cache"
	"energyforecast/internal/config"
	"energyforecast/internal/kraken"
	"energyforecast/internal/store"
)

var (
	cfgFile   string
	dbPath    string
	cachePath string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "energyforecast",
	Short: "Fetch and chart electricity usage from the Kraken API",
	Long: `Energyforecast pulls half-hourly electricity readings from the utility's
Kraken GraphQL API, caches them locally, and shows an interactive usage
dashboard with day/week/month/year views and a monthly cost forecast.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "cache file (default is ./cache.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// getCachePath returns the cache file path (local directory)
func getCachePath() string {
	if cachePath != "" {
		return cachePath
	}
	return "cache.json"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*store.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return store.New(path)
}

// openCache opens the persistent readings cache.
func openCache(logger *log.Logger) *cache.Store {
	return cache.Open(getCachePath(), logger)
}

// newLogger builds the logger shared by the internal packages.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// newAPIClient builds a Kraken client from the configured credentials.
func newAPIClient(cfg *config.Config, logger *log.Logger) (*kraken.Client, error) {
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("credentials not configured: set email, password and account_number in %s or the ENERGYFORECAST_* environment variables", getConfigPath())
	}
	return kraken.New(cfg.Email, cfg.Password, logger), nil
}
