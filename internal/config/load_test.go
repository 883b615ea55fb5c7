package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets up environment variables for testing
func setupEnv(t *testing.T, envVars map[string]string) func() {
	// Save current environment values
	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	// Set new environment variables
	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	// Return cleanup function
	return func() {
		// Restore original environment
		for name, value := range originalValues {
			if value == "" {
				os.Unsetenv(name)
			} else {
				os.Setenv(name, value)
			}
		}
	}
}

// requiredEnv holds the variables without defaults.
func requiredEnv() map[string]string {
	return map[string]string{
		"HUB_TASK_STORE_URL": "http://localhost:8090/fhir",
		"HUB_DATA_STORE_URL": "http://localhost:8091/fhir",
		"HUB_BEAM_URL":       "http://localhost:8081",
		"HUB_BEAM_APP_ID":    "measure-hub.proxy1.broker",
		"HUB_BEAM_API_KEY":   "secret-key",
	}
}

func withEnv(base map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// TestLoadDefaults verifies that the Load function sets the expected default values
// when only the required environment variables are set.
func TestLoadDefaults(t *testing.T) {
	cleanup := setupEnv(t, withEnv(requiredEnv(), map[string]string{
		"HUB_SERVER_PORT":      "",
		"HUB_SERVER_LOG_LEVEL": "",
	}))
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, 8080, cfg.Server.Port, "Default server port should be 8080")
	assert.Equal(t, "info", cfg.Server.LogLevel, "Default log level should be 'info'")
	assert.Equal(t, 50, cfg.TaskStore.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Beam.WaitTime)
	assert.Equal(t, time.Second, cfg.Pipelines.RestartDelay)
	assert.Equal(t, 5*time.Second, cfg.Pipelines.ResponseInterval)
	assert.True(t, cfg.Pipelines.AutoStart)
	assert.Empty(t, cfg.Pipelines.WatermarkDB)
}

// TestLoadFromEnv verifies that the Load function correctly reads values from environment variables.
func TestLoadFromEnv(t *testing.T) {
	cleanup := setupEnv(t, withEnv(requiredEnv(), map[string]string{
		"HUB_SERVER_PORT":                 "9090",
		"HUB_SERVER_LOG_LEVEL":            "debug",
		"HUB_BEAM_WAIT_TIME":              "2s",
		"HUB_PIPELINES_RESTART_DELAY":     "250ms",
		"HUB_PIPELINES_AUTO_START":        "false",
		"HUB_PIPELINES_WATERMARK_DB":      "/tmp/watermark.db",
		"HUB_TASK_STORE_PAGE_SIZE":        "20",
		"HUB_PIPELINES_EXECUTOR_INTERVAL": "3s",
	}))
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with valid environment variables")
	require.NotNil(t, cfg)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "http://localhost:8090/fhir", cfg.TaskStore.URL)
	assert.Equal(t, 20, cfg.TaskStore.PageSize)
	assert.Equal(t, "measure-hub.proxy1.broker", cfg.Beam.AppID)
	assert.Equal(t, "secret-key", cfg.Beam.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Beam.WaitTime)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipelines.RestartDelay)
	assert.Equal(t, 3*time.Second, cfg.Pipelines.ExecutorInterval)
	assert.False(t, cfg.Pipelines.AutoStart)
	assert.Equal(t, "/tmp/watermark.db", cfg.Pipelines.WatermarkDB)
}

// TestLoadValidationErrors verifies that the Load function correctly validates the configuration.
func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name: "Missing required fields",
			envVars: map[string]string{
				"HUB_SERVER_PORT": "9090",
			},
		},
		{
			name:    "Invalid port number",
			envVars: withEnv(requiredEnv(), map[string]string{"HUB_SERVER_PORT": "999999"}),
		},
		{
			name:    "Invalid log level",
			envVars: withEnv(requiredEnv(), map[string]string{"HUB_SERVER_LOG_LEVEL": "invalid-level"}),
		},
		{
			name:    "Invalid task store URL",
			envVars: withEnv(requiredEnv(), map[string]string{"HUB_TASK_STORE_URL": "not a url"}),
		},
		{
			name:    "Zero page size",
			envVars: withEnv(requiredEnv(), map[string]string{"HUB_TASK_STORE_PAGE_SIZE": "0"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Required variables left over from other cases must not leak in.
			cleanupAll := setupEnv(t, withEnv(map[string]string{
				"HUB_TASK_STORE_URL": "",
				"HUB_DATA_STORE_URL": "",
				"HUB_BEAM_URL":       "",
				"HUB_BEAM_APP_ID":    "",
				"HUB_BEAM_API_KEY":   "",
			}, tc.envVars))
			defer cleanupAll()

			cfg, err := Load()

			assert.Error(t, err, "Load() should return an error with invalid configuration")
			if err != nil {
				assert.Contains(t, err.Error(), "validation failed")
			}
			assert.Nil(t, cfg, "Config should be nil when an error occurs")
		})
	}
}
