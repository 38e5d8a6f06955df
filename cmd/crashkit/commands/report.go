/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: CLI command implementations for Akaylee CrashKit. report runs
the full reporter until interrupted; pending lists undelivered records;
flush re-drives the pending queue; crash triggers a test crash so the next
run can recover and deliver it.
*/

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-crashkit/pkg/reporter"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// RunReport initializes the reporter and runs until interrupted
func RunReport(cmd *cobra.Command, args []string) error {
	fmt.Println("Akaylee CrashKit - Crash Reporter")
	fmt.Println("=================================")
	fmt.Println()

	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	config := buildReporterConfig()
	looper := reporter.NewGoroutineLooper("main")
	defer looper.Stop()

	orch := reporter.NewOrchestrator(config, logger.GetLogger(), reporter.WithMainLooper(looper))
	if err := orch.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer orch.Shutdown()

	orch.MarkAppInitialized()
	fmt.Printf("Reporting to %s (pending: %d)\n", config.Endpoint, orch.PendingCrashCount())
	fmt.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down")
			return nil
		case <-ticker.C:
			stats := orch.Stats()
			logger.LogStats(stats.Captured, stats.Sent, stats.Deduplicated, stats.SampledOut, nil)
		}
	}
}

// RunPending lists undelivered crash records
func RunPending(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := storage.NewCrashStore(viper.GetString("data_dir"), nil)
	if err != nil {
		return fmt.Errorf("failed to open crash store: %w", err)
	}

	ids, err := store.ListPending()
	if err != nil {
		return fmt.Errorf("failed to list pending crashes: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No pending crash records")
		return nil
	}

	fmt.Printf("Pending crash records: %d\n\n", len(ids))
	for _, id := range ids {
		record, err := store.Load(id)
		if err != nil {
			fmt.Printf("  %s  <unreadable: %v>\n", id, err)
			continue
		}
		fmt.Printf("  %s  %-20s  %-8s  %s\n", record.ID, record.Kind, record.Severity, record.Title)
	}
	return nil
}

// RunFlush re-drives the pending queue through the send pipeline
func RunFlush(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	config := buildReporterConfig()
	orch := reporter.NewOrchestrator(config, logger.GetLogger())
	if err := orch.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer orch.Shutdown()

	before := orch.PendingCrashCount()
	if before == 0 {
		fmt.Println("No pending crash records")
		return nil
	}

	fmt.Printf("Sending %d pending crash records...\n", before)
	if err := orch.SendPendingCrashesNow(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	fmt.Printf("Done (remaining: %d)\n", orch.PendingCrashCount())
	return nil
}

// RunCrash triggers a test crash; the process terminates
func RunCrash(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	config := buildReporterConfig()
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:0"
	}
	orch := reporter.NewOrchestrator(config, logger.GetLogger())
	if err := orch.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	kind := viper.GetInt("crash_kind")
	fmt.Printf("Triggering native crash kind %d...\n", kind)
	if err := orch.TriggerNativeCrash(kind); err != nil {
		return err
	}

	// The watcher needs a moment to record before the re-raise kills us
	time.Sleep(5 * time.Second)
	return fmt.Errorf("crash kind %d did not terminate the process", kind)
}
