/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared helpers for CrashKit CLI commands. Loads the viper
configuration, builds the reporter configuration from flags, file and
environment, and sets up the structured logger.
*/

package commands

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/logging"
)

// LoadConfig reads the optional config file and binds environment variables
func LoadConfig() error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("CRASHKIT")
	viper.AutomaticEnv()

	return nil
}

// SetupLogging builds the structured logger from the active configuration
func SetupLogging() (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:  viper.GetString("log_level"),
		JSON:   viper.GetBool("json_logs"),
		Colors: true,
		Dir:    viper.GetString("log_dir"),
	})
}

// buildReporterConfig assembles the reporter configuration from viper
func buildReporterConfig() *core.ReporterConfig {
	config := core.DefaultReporterConfig()
	config.Endpoint = viper.GetString("endpoint")
	if t := viper.GetDuration("http_timeout"); t > 0 {
		config.HTTPTimeout = t
	}
	if d := viper.GetString("data_dir"); d != "" {
		config.DataDir = d
	}
	if d := viper.GetString("cache_dir"); d != "" {
		config.CacheDir = d
	}
	config.PackageID = viper.GetString("package_id")
	config.Version = viper.GetString("app_version")
	if e := viper.GetString("environment"); e != "" {
		config.Environment = e
	}
	if r := viper.GetFloat64("sample_rate"); r > 0 {
		config.SampleRate = r
	}
	config.EnableANR = viper.GetBool("enable_anr")
	if th := viper.GetInt64("anr_threshold_ms"); th > 0 {
		config.ANRThresholdMs = th
	}
	config.EnableDiskProbe = viper.GetBool("enable_disk_probe")
	if m := viper.GetInt("max_resend_per_minute"); m > 0 {
		config.MaxResendPerMinute = m
	}
	config.LogLevel = viper.GetString("log_level")
	config.LogDir = viper.GetString("log_dir")
	config.JSONLogs = viper.GetBool("json_logs")
	return config
}
