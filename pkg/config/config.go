// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default locations used when neither flags nor the environment name a path
const (
	DefaultBaselineDir    = "tests/reconciliation/baseline/vessels/RFMO/cleaned"
	DefaultCurrentDir     = "tests/reconciliation/current"
	DefaultDiffDir        = "tests/reconciliation/diffs"
	DefaultDiffConfigPath = "tests/reconciliation/diff_config.yaml"
	DefaultThresholdsPath = "tests/reconciliation/reconciliation_thresholds.yaml"
)

// Config represents the runtime configuration of a reconciliation run
type Config struct {
	// Inputs and outputs
	BaselineDir    string
	CurrentDir     string
	DiffDir        string
	DiffConfigPath string
	ThresholdsPath string
	PreferExt      string

	// Run settings
	WorkerPoolSize int

	// Optional run-history store
	Store *StoreConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are ignored; variables already set are never overwritten.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		BaselineDir:    getEnv("RECON_BASELINE_DIR", DefaultBaselineDir),
		CurrentDir:     getEnv("RECON_CURRENT_DIR", DefaultCurrentDir),
		DiffDir:        getEnv("RECON_DIFF_DIR", DefaultDiffDir),
		DiffConfigPath: getEnv("RECON_DIFF_CONFIG", DefaultDiffConfigPath),
		ThresholdsPath: getEnv("RECON_THRESHOLDS", DefaultThresholdsPath),
		PreferExt:      strings.ToLower(getEnv("PREFER_EXT", "xlsx")),
		WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 1),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}

	store, err := LoadStoreConfig()
	if err != nil {
		return nil, errors.New("failed to load store configuration: " + err.Error())
	}
	cfg.Store = store

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.BaselineDir == "" {
		return errors.New("baseline directory is required")
	}

	if c.CurrentDir == "" {
		return errors.New("current export directory is required")
	}

	if c.DiffDir == "" {
		return errors.New("diff output directory is required")
	}

	if c.PreferExt != "csv" && c.PreferExt != "xlsx" {
		return fmt.Errorf("prefer ext must be csv or xlsx, got %q", c.PreferExt)
	}

	if c.WorkerPoolSize < 1 {
		return errors.New("worker pool size must be positive")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.Store != nil {
		if err := c.Store.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// parseBool accepts the spellings operators put in env files
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

// splitList splits a comma-delimited value and drops empty items
func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		item = strings.Trim(strings.TrimSpace(item), `"`)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
