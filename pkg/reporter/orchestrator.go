/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator.go
Description: Orchestrator for Akaylee CrashKit. Owns initialization order and
the public surface of the reporter: wire stores, oracle and trackers, install
the exception and native signal handlers, parse any trailer the previous
session left behind, resend pending crashes, and start the ANR watchdog.
Initialization is idempotent; shutdown stops the watchdog, flushes pending
work and releases the signal handlers.
*/

package reporter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/anr"
	"github.com/kleascm/akaylee-crashkit/pkg/breadcrumb"
	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/device"
	"github.com/kleascm/akaylee-crashkit/pkg/grouping"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
	"github.com/kleascm/akaylee-crashkit/pkg/nativecrash"
	"github.com/kleascm/akaylee-crashkit/pkg/sender"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// minANRThresholdMs is the floor below which a threshold only earns a warning
const minANRThresholdMs = 1000

// Orchestrator wires and drives every component of the reporter
type Orchestrator struct {
	config *core.ReporterConfig
	logger *logrus.Logger

	mu          sync.Mutex
	initialized bool

	oracle     *device.Oracle
	ring       *breadcrumb.Ring
	custom     *breadcrumb.CustomData
	operations *breadcrumb.OperationTracker
	memory     *device.MemoryTracker
	network    *device.NetworkTracker

	crashStore   *storage.CrashStore
	fingerprints *storage.FingerprintStore
	startup      *storage.StartupStore

	gate      *grouping.Gate
	sender    *sender.Sender
	handler   *ExceptionHandler
	native    *nativecrash.Handler
	validator *anr.Validator
	watchdog  *anr.Watchdog

	stats *core.ReporterStats

	looper    interfaces.MainLooper
	hooks     device.HostHooks
	transport interfaces.Transport
}

// Option customizes orchestrator wiring before Initialize
type Option func(*Orchestrator)

// WithMainLooper supplies the UI-equivalent loop the watchdog pings
func WithMainLooper(looper interfaces.MainLooper) Option {
	return func(o *Orchestrator) { o.looper = looper }
}

// WithHostHooks supplies platform callbacks for the device oracle
func WithHostHooks(hooks device.HostHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithTransport replaces the default HTTP transport
func WithTransport(t interfaces.Transport) Option {
	return func(o *Orchestrator) { o.transport = t }
}

// NewOrchestrator creates an unwired orchestrator; Initialize does the rest
func NewOrchestrator(config *core.ReporterConfig, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config: config,
		logger: logger,
		stats:  &core.ReporterStats{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize wires every component. Safe to call more than once; only the
// first call does work.
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}
	if err := o.config.Validate(); err != nil {
		return fmt.Errorf("invalid reporter config: %w", err)
	}

	var err error
	o.crashStore, err = storage.NewCrashStore(o.config.DataDir, o.logger)
	if err != nil {
		return fmt.Errorf("failed to open crash store: %w", err)
	}
	o.fingerprints, err = storage.NewFingerprintStore(o.config.CacheDir, o.logger)
	if err != nil {
		return fmt.Errorf("failed to open fingerprint store: %w", err)
	}
	o.startup, err = storage.NewStartupStore(o.config.DataDir, o.logger)
	if err != nil {
		return fmt.Errorf("failed to open startup store: %w", err)
	}

	o.ring = breadcrumb.NewRing()
	o.custom = breadcrumb.NewCustomData()
	o.custom.SetEnvironment(o.config.Environment)
	o.operations = breadcrumb.NewOperationTracker()
	o.memory = device.NewMemoryTracker()
	o.network = device.NewNetworkTracker()
	o.oracle = device.NewOracle(o.hooks, o.config.CacheDir, o.config.EnableDiskProbe, o.network, o.logger)

	// Startup-crash and loop visibility before anything else runs
	if err := o.startup.MarkStarted(); err != nil && o.logger != nil {
		o.logger.WithError(err).Warning("Failed to mark launch")
	}
	if o.startup.DidCrashOnStartup() && o.logger != nil {
		o.logger.WithField("count", o.startup.StartupCrashCount()).Warning("Previous launch crashed during startup")
	}
	if o.startup.IsInCrashLoop() && o.logger != nil {
		o.logger.Error("Crash loop detected")
	}

	if o.transport == nil {
		o.transport = sender.NewHTTPTransport(o.config.Endpoint, o.config.HTTPTimeout)
	}
	o.gate = grouping.NewGate(o.fingerprints, o.config.SampleRate)
	o.sender = sender.NewSender(o.transport, o.crashStore, o.gate, o.stats, o.config.Version, o.logger)
	o.handler = NewExceptionHandler(
		o.config, o.oracle, o.ring, o.custom, o.operations,
		o.memory, o.network, o.crashStore, o.startup, o.sender,
		o.stats, o.logger,
	)
	if o.looper != nil {
		var id func() int64
		if provider, ok := o.looper.(interface{ GoroutineID() int64 }); ok {
			id = provider.GoroutineID
		}
		o.handler.SetMainThread(o.looper.ThreadName(), id)
	}

	o.native, err = nativecrash.Install(o.config.DataDir, func(sig syscall.Signal) {
		o.startup.RecordCrash()
	})
	if err != nil {
		return fmt.Errorf("failed to install native signal handler: %w", err)
	}

	o.dispatchPreviousTrailer()

	go func() {
		if err := o.sender.SendAllPending(o.config.MaxResendPerMinute); err != nil && o.logger != nil {
			o.logger.WithError(err).Warning("Pending resend failed")
		}
	}()

	if o.config.EnableANR && o.looper != nil {
		o.validator = anr.NewValidator(o.oracle, o.config.ANRThresholdMs, o.logger)
		o.watchdog = anr.NewWatchdog(o.looper, o.oracle, o.validator, o.handleANR, o.logger)
		o.watchdog.Start()
	}

	o.initialized = true
	if o.logger != nil {
		o.logger.WithFields(logrus.Fields{
			"endpoint": o.config.Endpoint,
			"anr":      o.config.EnableANR,
			"pending":  o.crashStore.PendingCount(),
		}).Info("Crash reporter initialized")
	}
	return nil
}

// dispatchPreviousTrailer parses, persists and sends a trailer left by the
// previous session, deleting it on success. Malformed trailers are logged
// and deleted so they cannot wedge startup forever.
func (o *Orchestrator) dispatchPreviousTrailer() {
	path := o.native.TrailerPath()
	record, err := nativecrash.ParseTrailerFile(path)
	if err != nil {
		if !isNotExist(err) {
			if o.logger != nil {
				o.logger.WithError(err).Warning("Discarding malformed crash trailer")
			}
			removeFile(path)
		}
		return
	}

	grouping.Apply(record)
	record.App = &core.AppSnapshot{
		PackageID:   o.config.PackageID,
		VersionName: o.config.Version,
	}
	record.Environment = o.config.Environment

	if err := o.crashStore.Save(record); err != nil {
		if o.logger != nil {
			o.logger.WithError(err).Error("Failed to persist native crash record")
		}
		return
	}
	o.stats.IncrementCaptured()
	o.stats.IncrementPersisted()
	if o.logger != nil {
		o.logger.WithFields(logrus.Fields{
			"crash_id": record.ID,
			"signal":   record.Native.SignalName,
		}).Error("Native crash recovered from previous session")
	}

	if err := o.sender.Process(record); err != nil {
		if o.logger != nil {
			o.logger.WithError(err).Warning("Native crash send failed, trailer kept")
		}
		return
	}
	removeFile(path)
}

// isNotExist unwraps a missing-file error from the trailer read
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// removeFile deletes best-effort; a missing file is fine
func removeFile(path string) {
	os.Remove(path)
}

// handleANR is the watchdog's report callback: build, persist, send
func (o *Orchestrator) handleANR(blockedMs int64, verdict *core.ANRValidation, mainStack string) {
	o.stats.IncrementANRDetected()

	stack := mainStack
	if stack == "" {
		stack = "UI thread stack unavailable"
	}
	threadName := "main"
	if o.looper != nil && o.looper.ThreadName() != "" {
		threadName = o.looper.ThreadName()
	}

	record := o.handler.BuildRecord(core.KindANR,
		fmt.Sprintf("Application not responding for %dms", blockedMs),
		stack, threadName)
	record.IsANR = true
	record.ANRDurationMs = blockedMs
	record.ANRValidation = verdict
	grouping.Apply(record)

	if err := o.crashStore.Save(record); err != nil {
		if o.logger != nil {
			o.logger.WithError(err).Error("Failed to persist ANR record")
		}
		return
	}
	o.stats.IncrementCaptured()
	o.stats.IncrementPersisted()

	go func() {
		if err := o.sender.Process(record); err != nil && o.logger != nil {
			o.logger.WithError(err).WithField("crash_id", record.ID).Warning("ANR send failed")
		}
	}()
}

// IsInitialized reports whether Initialize has completed
func (o *Orchestrator) IsInitialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// MarkAppInitialized tells the loop detector that critical init finished
func (o *Orchestrator) MarkAppInitialized() error {
	return o.startup.MarkInitialized()
}

// HandleManagedException routes a caught failure through the full pipeline
func (o *Orchestrator) HandleManagedException(message string, stack string, threadName string) bool {
	return o.handler.Handle(core.KindUnhandledException, message, stack, threadName)
}

// Handler exposes the exception handler for the panic bridge
func (o *Orchestrator) Handler() *ExceptionHandler {
	return o.handler
}

// LeaveBreadcrumb appends a user-observable event to the ring
func (o *Orchestrator) LeaveBreadcrumb(category, level, message string, data map[string]string) {
	o.ring.Add(category, level, message, data)
}

// SetCustomKey attaches a host key/value tag to future records
func (o *Orchestrator) SetCustomKey(key, value string) {
	o.custom.Set(key, value)
}

// Operations exposes the operation tracker to the host
func (o *Orchestrator) Operations() *breadcrumb.OperationTracker {
	return o.operations
}

// RecordMemoryWarning notes a platform memory-pressure callback
func (o *Orchestrator) RecordMemoryWarning(level interfaces.MemoryPressure, description string) {
	o.memory.Record(level, description)
}

// RecordNetworkChange notes a connectivity transition
func (o *Orchestrator) RecordNetworkChange(kind, description string) {
	o.network.RecordTransition(kind, description)
}

// NotifyScreenState logs a screen transition. Detection keeps running; the
// validation engine alone decides what a dark screen means.
func (o *Orchestrator) NotifyScreenState(on bool) {
	if o.logger != nil {
		o.logger.WithField("screen_on", on).Debug("Screen state changed")
	}
}

// SetANRThreshold updates the watchdog threshold. Values under one second
// are accepted with a warning; they make false positives likely.
func (o *Orchestrator) SetANRThreshold(thresholdMs int64) {
	if thresholdMs < minANRThresholdMs && o.logger != nil {
		o.logger.WithField("threshold_ms", thresholdMs).Warning("ANR threshold below 1s is prone to false positives")
	}
	o.config.ANRThresholdMs = thresholdMs
	if o.validator != nil {
		o.validator.SetThreshold(thresholdMs)
	}
}

// PauseANRDetection parks the watchdog during cooperative long operations
func (o *Orchestrator) PauseANRDetection() {
	if o.watchdog != nil {
		o.watchdog.Pause()
	}
}

// ResumeANRDetection restarts the watchdog after a cooperative pause
func (o *Orchestrator) ResumeANRDetection() {
	if o.watchdog != nil {
		o.watchdog.Resume()
	}
}

// SendPendingCrashesNow flushes the batch and re-drives pending records
func (o *Orchestrator) SendPendingCrashesNow() error {
	o.sender.FlushBatch()
	return o.sender.SendAllPending(o.config.MaxResendPerMinute)
}

// PendingCrashCount returns the number of undelivered records
func (o *Orchestrator) PendingCrashCount() int {
	return o.crashStore.PendingCount()
}

// TriggerNativeCrash raises a test crash; the process will terminate
func (o *Orchestrator) TriggerNativeCrash(kind int) error {
	return nativecrash.TriggerCrash(kind)
}

// Stats returns a consistent copy of the reporter counters
func (o *Orchestrator) Stats() core.ReporterStats {
	return o.stats.Snapshot()
}

// Shutdown stops the watchdog, flushes pending work and releases the
// signal handlers
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return
	}
	if o.watchdog != nil {
		o.watchdog.Stop()
	}
	if o.native != nil {
		o.native.Uninstall()
	}
	o.sender.Close()
	o.fingerprints.PeriodicCleanup()
	o.crashStore.CleanupOldSent()
	o.initialized = false
	if o.logger != nil {
		o.logger.Info("Crash reporter shut down")
	}
}
