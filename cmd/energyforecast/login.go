package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	loginAccount  string
	loginSave     bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify API credentials",
	Long: `Performs a login against the Kraken API with the configured credentials.
Credentials come from the config file or the ENERGYFORECAST_EMAIL,
ENERGYFORECAST_PASSWORD and ENERGYFORECAST_ACCOUNT_NUMBER environment
variables; flags override both. Use --save to write them to the config file.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.Flags().StringVar(&loginAccount, "account", "", "Account number")
	loginCmd.Flags().BoolVar(&loginSave, "save", false, "Save credentials to the config file")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if loginEmail != "" {
		cfg.Email = loginEmail
	}
	if loginPassword != "" {
		cfg.Password = loginPassword
	}
	if loginAccount != "" {
		cfg.AccountNumber = loginAccount
	}

	client, err := newAPIClient(cfg, newLogger())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Logging in as %s...\n", cfg.Email)
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Println("✓ Login successful")

	if loginSave {
		if err := saveConfig(cfg); err != nil {
			fmt.Printf("Warning: Could not save credentials: %v\n", err)
		} else {
			fmt.Printf("✓ Credentials saved to %s\n", getConfigPath())
		}
	}
	return nil
}
