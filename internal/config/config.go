package config

import (
	"os"
	"runtime"
	"strconv"

	"gamelearn/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig
	Database DatabaseConfig
	Server   ServerConfig
	Analysis AnalysisConfig
}

// DataConfig holds trial-data input settings
type DataConfig struct {
	TrialFile string // xlsx or csv file with trial-level records
}

// DatabaseConfig holds optional result-persistence settings
type DatabaseConfig struct {
	URL     string // empty disables persistence
	SSLMode string
}

// ServerConfig holds results API settings
type ServerConfig struct {
	Port string
}

// AnalysisConfig holds pipeline execution settings
type AnalysisConfig struct {
	Parallelism int   // concurrent outcome pipelines
	Seed        int64 // seed for the synthetic generator, testing only
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{
			TrialFile: getEnvOrDefault("TRIAL_FILE", ""),
		},
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Analysis: AnalysisConfig{
			Parallelism: getEnvIntOrDefault("ANALYSIS_PARALLELISM", runtime.NumCPU()),
			Seed:        int64(getEnvIntOrDefault("ANALYSIS_SEED", 1)),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Analysis.Parallelism < 1 {
		return errors.ConfigInvalid("ANALYSIS_PARALLELISM must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
