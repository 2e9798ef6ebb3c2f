package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultRate is the electricity unit rate in yen per kWh used when the
// config does not set one.
const defaultRate = 37.2

// Config holds the application configuration
type Config struct {
	Email         string     `yaml:"email,omitempty"`
	Password      string     `yaml:"password,omitempty"`
	AccountNumber string     `yaml:"account_number,omitempty"`
	Rate          float64    `yaml:"rate,omitempty"` // Cost per kWh in yen
	HomeAssistant HAConfig   `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig `yaml:"mqtt,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://yourdomain.local:5050"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.electricity_usage"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error; credentials can come entirely from the environment.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv overlays credentials from the environment (a .env file is loaded
// first if present). Environment values win over the config file.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("ENERGYFORECAST_EMAIL"); v != "" {
		c.Email = v
	}
	if v := os.Getenv("ENERGYFORECAST_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("ENERGYFORECAST_ACCOUNT_NUMBER"); v != "" {
		c.AccountNumber = v
	}
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// HasCredentials reports whether everything needed for auto-login is set.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != "" && c.AccountNumber != ""
}

// GetRate returns the cost per kWh, falling back to the default rate
func (c *Config) GetRate() float64 {
	if c.Rate <= 0 {
		return defaultRate
	}
	return c.Rate
}
