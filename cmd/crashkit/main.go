/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for Akaylee CrashKit. Provides
commands to run the reporter against an ingestion endpoint, inspect and
flush the pending crash queue, and trigger test crashes, with configuration
file and environment variable support.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-crashkit/cmd/crashkit/commands"
)

var (
	// Configuration
	configFile string
	logLevel   string
	jsonLogs   bool
	logDir     string

	// Ingestion configuration
	endpoint    string
	httpTimeout time.Duration

	// Storage configuration
	dataDir  string
	cacheDir string

	// Identity configuration
	packageID   string
	version     string
	environment string

	// Cost control configuration
	sampleRate float64

	// ANR configuration
	enableANR    bool
	anrThreshold int64

	// Oracle configuration
	enableDiskProbe bool

	// Sender configuration
	maxResendPerMinute int

	// Crash command
	crashKind int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crashkit",
		Short: "Akaylee CrashKit - Production crash and ANR reporting engine",
		Long: `Akaylee CrashKit is a crash reporting engine for embedded host applications.
It captures unhandled exceptions, fatal native signals and ANRs, groups them by
fingerprint, persists them durably, and delivers them to an ingestion endpoint
with deduplication, sampling and payload size control.`,
		Version: "1.0.0",
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Use JSON log format")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "./logs", "Log output directory")

	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Base URL of the crash ingestion service")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "HTTP timeout for crash delivery")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./crashkit-data", "Directory for pending and sent crash records")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "./crashkit-cache", "Directory for the fingerprint store")
	rootCmd.PersistentFlags().StringVar(&packageID, "package-id", "", "Host application package identifier")
	rootCmd.PersistentFlags().StringVar(&version, "app-version", "0.0.0", "Host application version")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "production", "Environment label attached to crash records")
	rootCmd.PersistentFlags().Float64Var(&sampleRate, "sample-rate", 0.15, "Probability a non-fatal crash is kept")
	rootCmd.PersistentFlags().BoolVar(&enableANR, "enable-anr", true, "Enable the ANR watchdog")
	rootCmd.PersistentFlags().Int64Var(&anrThreshold, "anr-threshold-ms", 15000, "Base ANR threshold in milliseconds")
	rootCmd.PersistentFlags().BoolVar(&enableDiskProbe, "enable-disk-probe", false, "Enable the 1 MiB disk throughput probe")
	rootCmd.PersistentFlags().IntVar(&maxResendPerMinute, "max-resend-per-minute", 10, "Throttle for resending pending crashes")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("http_timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("package_id", rootCmd.PersistentFlags().Lookup("package-id"))
	viper.BindPFlag("app_version", rootCmd.PersistentFlags().Lookup("app-version"))
	viper.BindPFlag("environment", rootCmd.PersistentFlags().Lookup("environment"))
	viper.BindPFlag("sample_rate", rootCmd.PersistentFlags().Lookup("sample-rate"))
	viper.BindPFlag("enable_anr", rootCmd.PersistentFlags().Lookup("enable-anr"))
	viper.BindPFlag("anr_threshold_ms", rootCmd.PersistentFlags().Lookup("anr-threshold-ms"))
	viper.BindPFlag("enable_disk_probe", rootCmd.PersistentFlags().Lookup("enable-disk-probe"))
	viper.BindPFlag("max_resend_per_minute", rootCmd.PersistentFlags().Lookup("max-resend-per-minute"))

	// Add report command
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Run the crash reporter against an ingestion endpoint",
		Long: `Initialize the full reporter: install the exception and native signal
handlers, recover any crash trailer from the previous session, resend pending
records, and start the ANR watchdog. Runs until interrupted.`,
		RunE: commands.RunReport,
	}
	rootCmd.AddCommand(reportCmd)

	// Add pending command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List undelivered crash records",
		Long:  `List the crash records persisted under pending/ that have not yet been acknowledged by the ingestion endpoint.`,
		RunE:  commands.RunPending,
	})

	// Add flush command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Send all pending crash records now",
		Long: `Re-drive every pending crash record through the send pipeline, throttled
to the configured per-minute rate. Records still pass deduplication and sampling.`,
		RunE: commands.RunFlush,
	})

	// Add crash command
	crashCmd := &cobra.Command{
		Use:   "crash",
		Short: "Trigger a test crash",
		Long: `Trigger a test crash to exercise the capture pipeline end to end. Kinds:
0 null write, 1 abort, 2 divide by zero, 3 wild pointer, 4 stack overflow.
The process terminates; the next run recovers and delivers the record.`,
		RunE: commands.RunCrash,
	}
	crashCmd.Flags().IntVar(&crashKind, "kind", 0, "Crash kind (0-4)")
	viper.BindPFlag("crash_kind", crashCmd.Flags().Lookup("kind"))
	rootCmd.AddCommand(crashCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
