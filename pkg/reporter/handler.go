/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: handler.go
Description: Exception handler for Akaylee CrashKit. Assembles a complete
crash record from the device oracle, breadcrumb ring, operation tracker and
all live goroutine stacks, runs it through grouping, persists synchronously
so force-close cannot lose it, then attempts a best-effort immediate send.
The panic bridge (Recover, Go) is how host goroutines route their panics
here before the process dies.
*/

package reporter

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/breadcrumb"
	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/device"
	"github.com/kleascm/akaylee-crashkit/pkg/grouping"
	"github.com/kleascm/akaylee-crashkit/pkg/sender"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// allStacksBufSize bounds the all-goroutine stack capture
const allStacksBufSize = 1 << 20

// ExceptionHandler turns failures into persisted, grouped crash records
type ExceptionHandler struct {
	config     *core.ReporterConfig
	oracle     *device.Oracle
	ring       *breadcrumb.Ring
	custom     *breadcrumb.CustomData
	operations *breadcrumb.OperationTracker
	memory     *device.MemoryTracker
	network    *device.NetworkTracker
	store      *storage.CrashStore
	startup    *storage.StartupStore
	sender     *sender.Sender
	stats      *core.ReporterStats
	logger     *logrus.Logger

	// Main loop identity, when the host wired a looper. The ID provider is
	// consulted at capture time because the loop goroutine may restart.
	mainThreadName string
	mainThreadID   func() int64
}

// NewExceptionHandler wires the handler over the shared components
func NewExceptionHandler(
	config *core.ReporterConfig,
	oracle *device.Oracle,
	ring *breadcrumb.Ring,
	custom *breadcrumb.CustomData,
	operations *breadcrumb.OperationTracker,
	memory *device.MemoryTracker,
	network *device.NetworkTracker,
	store *storage.CrashStore,
	startup *storage.StartupStore,
	snd *sender.Sender,
	stats *core.ReporterStats,
	logger *logrus.Logger,
) *ExceptionHandler {
	return &ExceptionHandler{
		config:     config,
		oracle:     oracle,
		ring:       ring,
		custom:     custom,
		operations: operations,
		memory:     memory,
		network:    network,
		store:      store,
		startup:    startup,
		sender:     snd,
		stats:      stats,
		logger:     logger,
	}
}

// SetMainThread registers the UI-equivalent thread so thread snapshots can
// mark it. The id provider may be nil when the looper cannot identify its
// goroutine.
func (h *ExceptionHandler) SetMainThread(name string, id func() int64) {
	h.mainThreadName = name
	h.mainThreadID = id
}

// Handle processes one failure: persist first, then best-effort send.
// Returns whether a record was captured (false when the brake is on).
func (h *ExceptionHandler) Handle(kind core.ExceptionKind, message string, stack string, threadName string) bool {
	if h.startup != nil {
		if err := h.startup.RecordCrash(); err != nil && h.logger != nil {
			h.logger.WithError(err).Warning("Failed to record crash time")
		}
		if h.startup.ShouldDisableCapture() {
			if h.stats != nil {
				h.stats.IncrementBrakeTrips()
			}
			if h.logger != nil {
				h.logger.Error("Capture disabled by safety brake, deferring to platform")
			}
			return false
		}
	}

	record := h.BuildRecord(kind, message, stack, threadName)
	grouping.Apply(record)

	if err := h.store.Save(record); err != nil {
		if h.logger != nil {
			h.logger.WithError(err).Error("Failed to persist crash record")
		}
		return false
	}
	if h.stats != nil {
		h.stats.IncrementCaptured()
		h.stats.IncrementPersisted()
	}
	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"crash_id":    record.ID,
			"kind":        record.Kind,
			"fingerprint": record.Fingerprint,
			"severity":    record.Severity,
		}).Error("Crash captured")
	}

	// Delivery is best effort; the persisted record survives either way
	go func() {
		if err := h.sender.Process(record); err != nil {
			if h.stats != nil {
				h.stats.IncrementSendFailures()
			}
			if h.logger != nil {
				h.logger.WithError(err).WithField("crash_id", record.ID).Warning("Immediate send failed")
			}
		}
	}()
	return true
}

// BuildRecord assembles the full crash record from every live source
func (h *ExceptionHandler) BuildRecord(kind core.ExceptionKind, message string, stack string, threadName string) *core.CrashRecord {
	record := core.NewCrashRecord(kind)
	record.Message = message
	record.StackTrace = stack
	record.ThreadName = threadName

	record.Device = deviceSnapshot(h.oracle)
	record.App = &core.AppSnapshot{
		PackageID:   h.config.PackageID,
		VersionName: h.config.Version,
	}
	record.DeviceState = h.oracle.StateSnapshot()
	record.Network = h.oracle.NetworkSnapshot()
	record.Memory = h.oracle.MemoryInfo()
	record.CPU = h.oracle.CPUInfo()
	record.Process = h.oracle.ProcessInfo(h.config.PackageID)

	record.Threads = captureAllThreads(h.identifyThreads(threadName))
	record.Breadcrumbs = h.ring.Snapshot()
	record.CustomData = h.custom.Snapshot()
	record.Environment = h.custom.Environment()
	if record.Environment == "" {
		record.Environment = h.config.Environment
	}
	record.MemoryWarnings = h.memory.Snapshot()
	record.NetworkChanges = h.network.Snapshot()

	current, lastOK, lastFailed, failReason := h.operations.Snapshot()
	record.CurrentOperation = current
	record.LastSuccessfulOp = lastOK
	record.LastFailedOp = lastFailed
	record.LastFailureReason = failReason

	if h.startup != nil {
		record.StartupCrashCount = h.startup.StartupCrashCount()
		record.StartupCrash = record.StartupCrashCount > 0
		record.CrashLoop = h.startup.IsInCrashLoop()
	}
	return record
}

// Recover is the panic bridge for deferred use:
//
//	defer handler.Recover("worker")
//
// A panic is captured, persisted and re-raised so the process still dies.
func (h *ExceptionHandler) Recover(threadName string) {
	if r := recover(); r != nil {
		buf := make([]byte, 64<<10)
		n := runtime.Stack(buf, false)
		h.Handle(core.KindUnhandledException, fmt.Sprintf("%v", r), string(buf[:n]), threadName)
		panic(r)
	}
}

// Go runs fn on a new goroutine with the panic bridge installed
func (h *ExceptionHandler) Go(threadName string, fn func()) {
	go func() {
		defer h.Recover(threadName)
		fn()
	}()
}

// deviceSnapshot fills the stable hardware/OS identity
func deviceSnapshot(oracle *device.Oracle) *core.DeviceSnapshot {
	snap := &core.DeviceSnapshot{
		OSVersion:  runtime.GOOS + "/" + runtime.GOARCH,
		TimezoneID: oracle.TimezoneID(),
	}
	if lang := os.Getenv("LANG"); lang != "" {
		snap.Locale = lang
	}
	if host, err := os.Hostname(); err == nil {
		snap.Model = host
	}
	return snap
}

// threadIdentity pins down which goroutines in the all-stacks dump are the
// crashing thread and the main loop. Goroutine names in a dump are synthetic,
// so matching has to go by goroutine ID: the crashing goroutine is the one
// running this call (the panic bridge and managed-exception entry points run
// on the failing goroutine), unless the failure names the main loop itself,
// as an ANR does, in which case the looper's own goroutine is the one.
type threadIdentity struct {
	crashedID   int64
	crashedName string
	mainID      int64
	mainName    string
}

func (h *ExceptionHandler) identifyThreads(crashedName string) threadIdentity {
	ident := threadIdentity{crashedName: crashedName}
	if h.mainThreadID != nil {
		ident.mainID = h.mainThreadID()
		ident.mainName = h.mainThreadName
	}
	if ident.mainID != 0 && crashedName != "" && crashedName == h.mainThreadName {
		ident.crashedID = ident.mainID
	} else {
		ident.crashedID = currentGoroutineID()
	}
	return ident
}

// currentGoroutineID parses the calling goroutine's ID from its own stack
// dump header ("goroutine N [state]:")
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	idStr, _, _ := strings.Cut(header, " ")
	id, _ := strconv.ParseInt(idStr, 10, 64)
	return id
}

// captureAllThreads snapshots every live goroutine stack. The crashing and
// main loop goroutines are marked so the optimizer keeps them first.
func captureAllThreads(ident threadIdentity) []core.ThreadSnapshot {
	buf := make([]byte, allStacksBufSize)
	n := runtime.Stack(buf, true)
	return parseGoroutineDump(string(buf[:n]), ident)
}

// parseGoroutineDump splits an all-goroutine dump into thread snapshots,
// naming the crashing and main goroutines after their host-visible threads
func parseGoroutineDump(dump string, ident threadIdentity) []core.ThreadSnapshot {
	var threads []core.ThreadSnapshot
	for _, block := range strings.Split(dump, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		header, body, _ := strings.Cut(block, "\n")
		if !strings.HasPrefix(header, "goroutine ") {
			continue
		}

		rest := strings.TrimPrefix(header, "goroutine ")
		idStr, state, _ := strings.Cut(rest, " ")
		state = strings.Trim(state, "[]:")
		id, _ := strconv.ParseInt(idStr, 10, 64)

		snap := core.ThreadSnapshot{
			Name:       "goroutine-" + idStr,
			ID:         id,
			State:      state,
			StackTrace: body,
		}
		if ident.mainID != 0 && id == ident.mainID {
			snap.Main = true
			if ident.mainName != "" {
				snap.Name = ident.mainName
			}
		}
		if ident.crashedID != 0 && id == ident.crashedID {
			snap.Crashed = true
			if ident.crashedName != "" {
				snap.Name = ident.crashedName
			}
		}
		threads = append(threads, snap)
	}
	return threads
}
