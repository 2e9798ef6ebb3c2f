package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.HasCredentials())
	assert.Equal(t, defaultRate, cfg.GetRate())
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &Config{
		Email:         "user@example.com",
		Password:      "secret",
		AccountNumber: "A-123",
		Rate:          30.5,
		HomeAssistant: HAConfig{Enabled: true, URL: "http://ha.local:5050", Token: "tok", EntityID: "sensor.electricity_usage"},
		MQTT:          MQTTConfig{Enabled: true, Broker: "localhost:1883", TopicPrefix: "energy"},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Email, loaded.Email)
	assert.Equal(t, cfg.AccountNumber, loaded.AccountNumber)
	assert.Equal(t, 30.5, loaded.GetRate())
	assert.True(t, loaded.HasCredentials())
	assert.Equal(t, cfg.HomeAssistant, loaded.HomeAssistant)
	assert.Equal(t, cfg.MQTT, loaded.MQTT)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, &Config{Email: "file@example.com", Password: "filepass", AccountNumber: "A-1"}))

	t.Setenv("ENERGYFORECAST_EMAIL", "env@example.com")
	t.Setenv("ENERGYFORECAST_ACCOUNT_NUMBER", "A-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.Email)
	assert.Equal(t, "filepass", cfg.Password, "unset env vars leave file values alone")
	assert.Equal(t, "A-2", cfg.AccountNumber)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml:::"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetRateFallsBackForNonPositive(t *testing.T) {
	assert.Equal(t, defaultRate, (&Config{Rate: 0}).GetRate())
	assert.Equal(t, defaultRate, (&Config{Rate: -1}).GetRate())
	assert.Equal(t, 42.0, (&Config{Rate: 42}).GetRate())
}
