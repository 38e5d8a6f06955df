/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Reporter configuration for Akaylee CrashKit. Supports both
command-line flags and configuration files, with validation of every field
before the orchestrator wires components together.
*/

package core

import (
	"fmt"
	"time"
)

// ReporterConfig contains all configuration parameters for the crash reporter
type ReporterConfig struct {
	// Ingestion configuration
	Endpoint    string        `json:"endpoint"`     // Base URL of the ingestion service
	HTTPTimeout time.Duration `json:"http_timeout"` // Connect/read/write timeout

	// Storage configuration
	DataDir  string `json:"data_dir"`  // App private dir holding crashes/pending and crashes/sent
	CacheDir string `json:"cache_dir"` // Cache dir holding crash_fingerprints.json

	// Identity configuration
	PackageID   string `json:"package_id"`  // Host application package identifier
	Version     string `json:"version"`     // Host application version string
	Environment string `json:"environment"` // Environment label attached to records

	// Cost control configuration
	SampleRate float64 `json:"sample_rate"` // Probability a non-fatal record is kept

	// ANR configuration
	EnableANR      bool  `json:"enable_anr"`       // Whether the watchdog runs
	ANRThresholdMs int64 `json:"anr_threshold_ms"` // Base unresponsiveness threshold

	// Oracle configuration
	EnableDiskProbe bool `json:"enable_disk_probe"` // Whether the 1 MiB disk probe runs

	// Sender configuration
	MaxResendPerMinute int `json:"max_resend_per_minute"` // Throttle for pending resend

	// Logging configuration
	LogLevel string `json:"log_level"` // Logging level (debug, info, warn, error)
	LogDir   string `json:"log_dir"`   // Directory for reporter log files
	JSONLogs bool   `json:"json_logs"` // Use JSON log format
}

// DefaultReporterConfig returns the configuration the reporter ships with
func DefaultReporterConfig() *ReporterConfig {
	return &ReporterConfig{
		HTTPTimeout:        30 * time.Second,
		DataDir:            "./crashkit-data",
		CacheDir:           "./crashkit-cache",
		Environment:        "production",
		SampleRate:         0.15,
		EnableANR:          true,
		ANRThresholdMs:     15000,
		EnableDiskProbe:    false,
		MaxResendPerMinute: 10,
		LogLevel:           "info",
		LogDir:             "./logs",
	}
}

// Validate checks the ReporterConfig for invalid or missing values.
// Returns an error if the config is invalid, or nil if valid.
func (c *ReporterConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be in [0, 1], got %f", c.SampleRate)
	}
	if c.ANRThresholdMs <= 0 {
		return fmt.Errorf("anr_threshold_ms must be positive")
	}
	if c.MaxResendPerMinute <= 0 {
		return fmt.Errorf("max_resend_per_minute must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	return nil
}
