// Package config provides configuration management for the HaptiSync server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Drift loop configuration
	DriftTickInterval     time.Duration // How often the drift loop wakes
	DriftCheckInterval    time.Duration // At most one device poll per interval
	DriftLocalThresholdMs int64         // Correction trigger for local video (ms)
	DriftEmbedThresholdMs int64         // Correction trigger for embedded video (ms)
	DriftCorrectionCapMs  int64         // Bound on a single correction step (ms)

	// Autoplay loop configuration
	LoopEarlyMargin   time.Duration // How far before a script's end the hand-off check fires
	LoopRetryInterval time.Duration // Re-check delay after an early or failed check

	// Script library configuration
	ScriptsDir    string        // Directory scanned and watched for funscript files
	WatchScripts  bool          // Enable the directory watcher
	WatchDebounce time.Duration // Quiet period before a changed file is imported

	// Device configuration
	SimLatencyMs int64 // Latency reported by the simulated device (ms)

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4000"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./haptisync.db"),

		// Drift loop
		DriftTickInterval:     time.Duration(getEnvInt("DRIFT_TICK_INTERVAL", 100)) * time.Millisecond,
		DriftCheckInterval:    time.Duration(getEnvInt("DRIFT_CHECK_INTERVAL", 2000)) * time.Millisecond,
		DriftLocalThresholdMs: int64(getEnvInt("DRIFT_LOCAL_THRESHOLD", 200)),
		DriftEmbedThresholdMs: int64(getEnvInt("DRIFT_EMBED_THRESHOLD", 500)),
		DriftCorrectionCapMs:  int64(getEnvInt("DRIFT_CORRECTION_CAP", 500)),

		// Autoplay loop
		LoopEarlyMargin:   time.Duration(getEnvInt("LOOP_EARLY_MARGIN", 500)) * time.Millisecond,
		LoopRetryInterval: time.Duration(getEnvInt("LOOP_RETRY_INTERVAL", 250)) * time.Millisecond,

		// Script library
		ScriptsDir:    getEnv("SCRIPTS_DIR", "./scripts"),
		WatchScripts:  getEnvBool("WATCH_SCRIPTS", true),
		WatchDebounce: time.Duration(getEnvInt("WATCH_DEBOUNCE", 500)) * time.Millisecond,

		// Device
		SimLatencyMs: int64(getEnvInt("SIM_LATENCY_MS", 0)),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
