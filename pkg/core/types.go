/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for Akaylee CrashKit. Defines the crash record data
model that is persisted, optimized, and delivered to the ingestion endpoint,
together with the snapshot structures filled in by the device state oracle and
the reporter statistics counters.
*/

package core

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

// ExceptionKind tags the symbolic family a crash record belongs to
type ExceptionKind string

const (
	KindNativeSignal       ExceptionKind = "NativeSignal"
	KindUnhandledException ExceptionKind = "UnhandledException"
	KindANR                ExceptionKind = "ANR"
	KindOutOfMemory        ExceptionKind = "OutOfMemoryError"
)

// Severity represents the triaged severity of a crash record
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Breadcrumb is a single user-observable event retained in the context ring
type Breadcrumb struct {
	Timestamp time.Time         `json:"timestamp"`          // When the event occurred
	Category  string            `json:"category,omitempty"` // Event category (ui, network, lifecycle, ...)
	Level     string            `json:"level,omitempty"`    // Severity hint (info, warning, error)
	Message   string            `json:"message,omitempty"`  // Human-readable description
	Data      map[string]string `json:"data,omitempty"`     // Structured key/value detail
}

// MemoryEvent records a platform memory-pressure callback
type MemoryEvent struct {
	Timestamp   time.Time                 `json:"timestamp"`             // When the warning fired
	Level       interfaces.MemoryPressure `json:"level,omitempty"`       // Pressure level reported
	Description string                    `json:"description,omitempty"` // Free-form detail
}

// NetworkEvent records a connectivity transition
type NetworkEvent struct {
	Timestamp   time.Time `json:"timestamp"`             // When the transition occurred
	Kind        string    `json:"kind,omitempty"`        // Transition kind (lost, available, changed)
	Description string    `json:"description,omitempty"` // Free-form detail
}

// DeviceSnapshot describes the device hardware and OS at crash time
type DeviceSnapshot struct {
	Model         string `json:"model,omitempty"`          // Device model identifier
	Manufacturer  string `json:"manufacturer,omitempty"`   // Device manufacturer
	OSVersion     string `json:"os_version,omitempty"`     // Platform OS version
	Locale        string `json:"locale,omitempty"`         // Active locale tag
	ScreenWidth   int    `json:"screen_width,omitempty"`   // Screen width in pixels
	ScreenHeight  int    `json:"screen_height,omitempty"`  // Screen height in pixels
	ScreenDensity int    `json:"screen_density,omitempty"` // Screen density in dpi
	TimezoneID    string `json:"timezone_id,omitempty"`    // IANA timezone identifier
}

// AppSnapshot describes the host application build
type AppSnapshot struct {
	PackageID       string `json:"package_id,omitempty"`        // Application package identifier
	VersionName     string `json:"version_name,omitempty"`      // Marketing version string
	VersionCode     int64  `json:"version_code,omitempty"`      // Monotonic build number
	FirstInstallMs  int64  `json:"first_install_ms,omitempty"`  // First-install epoch ms
	LastUpdateMs    int64  `json:"last_update_ms,omitempty"`    // Last-update epoch ms
	InstallerSource string `json:"installer_source,omitempty"`  // Installing store, if known
}

// DeviceStateSnapshot captures the volatile device state at crash time
type DeviceStateSnapshot struct {
	BatteryFraction  float64                `json:"battery_fraction,omitempty"`  // Battery level 0..1
	Charging         bool                   `json:"charging,omitempty"`          // Whether charging
	MemoryAvailable  uint64                 `json:"memory_available,omitempty"`  // Available RAM bytes
	MemoryTotal      uint64                 `json:"memory_total,omitempty"`      // Total RAM bytes
	StorageAvailable uint64                 `json:"storage_available,omitempty"` // Free storage bytes
	StorageTotal     uint64                 `json:"storage_total,omitempty"`     // Total storage bytes
	ScreenOn         bool                   `json:"screen_on,omitempty"`         // Screen state
	Orientation      interfaces.Orientation `json:"orientation,omitempty"`       // Screen orientation
	LowMemory        bool                   `json:"low_memory,omitempty"`        // Platform low-memory flag
	PowerSave        bool                   `json:"power_save,omitempty"`        // Power-save mode flag
	UptimeMs         int64                  `json:"uptime_ms,omitempty"`         // Ms since boot
	BootTimeMs       int64                  `json:"boot_time_ms,omitempty"`      // Boot epoch ms
	DiskWriteBps     float64                `json:"disk_write_bps,omitempty"`    // Disk probe write throughput
	DiskReadBps      float64                `json:"disk_read_bps,omitempty"`     // Disk probe read throughput
}

// NetworkSnapshot captures the active network configuration at crash time
type NetworkSnapshot struct {
	Type        string `json:"type,omitempty"`         // Transport type (wifi, cellular, none)
	VPNActive   bool   `json:"vpn_active,omitempty"`   // Whether a VPN is active
	ProxyActive bool   `json:"proxy_active,omitempty"` // Whether a proxy is configured
}

// MemoryInfo captures process heap sizes at crash time
type MemoryInfo struct {
	HeapUsed        uint64 `json:"heap_used,omitempty"`         // Managed heap in use, bytes
	HeapMax         uint64 `json:"heap_max,omitempty"`          // Managed heap limit, bytes
	NativeHeapUsed  uint64 `json:"native_heap_used,omitempty"`  // Native heap in use, bytes
	NativeHeapTotal uint64 `json:"native_heap_total,omitempty"` // Native heap reserved, bytes
	Goroutines      int    `json:"goroutines,omitempty"`        // Live worker count
	GCCount         uint32 `json:"gc_count,omitempty"`          // Collections since start
}

// CPUInfo captures processor details at crash time
type CPUInfo struct {
	Cores        int    `json:"cores,omitempty"`        // Logical core count
	Architecture string `json:"architecture,omitempty"` // Architecture family tag
	ABI          string `json:"abi,omitempty"`          // Platform ABI string
}

// ProcessInfo captures identity and visibility of the crashing process
type ProcessInfo struct {
	PID        int                          `json:"pid,omitempty"`        // Process identifier
	Name       string                       `json:"name,omitempty"`       // Process name
	Importance interfaces.ProcessImportance `json:"importance,omitempty"` // Visibility level
	Foreground bool                         `json:"foreground,omitempty"` // Foreground flag
	StartTime  int64                        `json:"start_time,omitempty"` // Process start epoch ms
}

// ThreadSnapshot captures the stack of one live worker thread
type ThreadSnapshot struct {
	Name       string `json:"name"`                  // Thread name
	ID         int64  `json:"id,omitempty"`          // Thread identifier
	State      string `json:"state,omitempty"`       // Scheduler state if known
	StackTrace string `json:"stack_trace,omitempty"` // Rendered stack trace
	Crashed    bool   `json:"crashed,omitempty"`     // Whether this thread crashed
	Main       bool   `json:"main,omitempty"`        // Whether this is the UI-equivalent thread
}

// NativeCrashInfo carries the fields recovered from the native crash trailer
type NativeCrashInfo struct {
	SignalName   string            `json:"signal_name,omitempty"`   // Symbolic signal name (SIGSEGV, ...)
	SignalCode   int               `json:"signal_code,omitempty"`   // si_code value
	FaultAddress string            `json:"fault_address,omitempty"` // Hex fault address
	Registers    map[string]string `json:"registers,omitempty"`     // Register name -> hex value
	MemoryDump   string            `json:"memory_dump,omitempty"`   // Hex dump tail around the fault
	FrameCount   int               `json:"frame_count,omitempty"`   // Raw frames captured
}

// ANRValidationFactors records the inputs the validation engine decided over
type ANRValidationFactors struct {
	ProcessImportance   interfaces.ProcessImportance `json:"process_importance"`    // Importance at detection
	ScreenOn            bool                         `json:"screen_on"`             // Screen state at detection
	NetworkLost         bool                         `json:"network_lost"`          // Recent connectivity loss
	PowerSave           bool                         `json:"power_save"`            // Power-save mode active
	BatteryFraction     float64                      `json:"battery_fraction"`      // Battery level 0..1
	AdjustedThresholdMs int64                        `json:"adjusted_threshold_ms"` // Threshold after power adjustment
}

// ANRValidation is the multi-factor classifier verdict attached to ANR records
type ANRValidation struct {
	Valid          bool                 `json:"valid"`                     // Whether the ANR is considered real
	Reason         string               `json:"reason"`                    // Accept or reject reason tag
	Confidence     int                  `json:"confidence"`                // 50..99
	BlockingFactor string               `json:"blocking_factor,omitempty"` // Factor that rejected, if any
	Factors        ANRValidationFactors `json:"factors"`                   // Inputs the verdict was made over
}

// CrashRecord is the durable unit of the pipeline. A record is created by a
// crash source, enriched by grouping, persisted by the crash store, and owned
// on disk until the sender acknowledges delivery.
type CrashRecord struct {
	ID         string        `json:"id"`                    // Unique identifier (random 128-bit)
	Timestamp  time.Time     `json:"timestamp"`             // Wall-clock capture time
	Kind       ExceptionKind `json:"kind"`                  // Symbolic exception family
	Message    string        `json:"message,omitempty"`     // Free-form exception message
	StackTrace string        `json:"stack_trace,omitempty"` // Rendered stack trace
	ThreadName string        `json:"thread_name,omitempty"` // Crashing thread name

	Device      *DeviceSnapshot      `json:"device,omitempty"`       // Hardware/OS snapshot
	App         *AppSnapshot         `json:"app,omitempty"`          // Application build snapshot
	DeviceState *DeviceStateSnapshot `json:"device_state,omitempty"` // Volatile device state
	Network     *NetworkSnapshot     `json:"network,omitempty"`      // Network configuration
	Memory      *MemoryInfo          `json:"memory,omitempty"`       // Heap sizes
	CPU         *CPUInfo             `json:"cpu,omitempty"`          // Processor details
	Process     *ProcessInfo         `json:"process,omitempty"`      // Process identity

	Threads        []ThreadSnapshot  `json:"threads,omitempty"`         // All-thread stack snapshots (bounded)
	Breadcrumbs    []Breadcrumb      `json:"breadcrumbs,omitempty"`     // Recent breadcrumbs (bounded)
	MemoryWarnings []MemoryEvent     `json:"memory_warnings,omitempty"` // Recent memory-pressure events (bounded)
	NetworkChanges []NetworkEvent    `json:"network_changes,omitempty"` // Recent connectivity events (bounded)
	CustomData     map[string]string `json:"custom_data,omitempty"`     // Host key/value tags (bounded)
	Environment    string            `json:"environment,omitempty"`     // Environment label (production, staging)
	LogTail        []string          `json:"log_tail,omitempty"`        // Bounded recent log lines

	CurrentOperation  string `json:"current_operation,omitempty"`   // Operation in flight at crash time
	LastSuccessfulOp  string `json:"last_successful_op,omitempty"`  // Last operation that completed
	LastFailedOp      string `json:"last_failed_op,omitempty"`      // Last operation that failed
	LastFailureReason string `json:"last_failure_reason,omitempty"` // Why the last failure failed

	Fingerprint string   `json:"fingerprint,omitempty"` // Grouping hash, 16 hex chars
	Title       string   `json:"title,omitempty"`       // Issue title for the dashboard
	Severity    Severity `json:"severity,omitempty"`    // Triaged severity

	IsANR         bool  `json:"is_anr,omitempty"`          // Whether this record is an ANR
	ANRDurationMs int64 `json:"anr_duration_ms,omitempty"` // Measured block duration

	StartupCrash      bool `json:"startup_crash,omitempty"`       // Crash within the startup window
	CrashLoop         bool `json:"crash_loop,omitempty"`          // Crash-loop detector fired
	StartupCrashCount int  `json:"startup_crash_count,omitempty"` // Rolling startup crash counter

	Native        *NativeCrashInfo `json:"native,omitempty"`         // Native-crash trailer fields
	ANRValidation *ANRValidation   `json:"anr_validation,omitempty"` // Validation verdict for ANRs
}

// NewCrashRecord creates a record with a fresh identifier and capture time
func NewCrashRecord(kind ExceptionKind) *CrashRecord {
	return &CrashRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Kind:      kind,
	}
}

// ReporterStats tracks reporter counters.
// Uses atomic operations for thread-safe updates.
type ReporterStats struct {
	Captured     int64 `json:"captured"`      // Records assembled from any source
	Persisted    int64 `json:"persisted"`     // Records written to the pending store
	Sent         int64 `json:"sent"`          // Records acknowledged by the endpoint
	SendFailures int64 `json:"send_failures"` // Delivery attempts that exhausted retries
	Deduplicated int64 `json:"deduplicated"`  // Increment-only outcomes
	SampledOut   int64 `json:"sampled_out"`   // Non-fatal records dropped by sampling
	ANRDetected  int64 `json:"anr_detected"`  // Watchdog detections before validation
	ANRRejected  int64 `json:"anr_rejected"`  // Detections rejected by the validator
	BrakeTrips   int64 `json:"brake_trips"`   // Safety-brake activations
}

// IncrementCaptured atomically increments the captured counter
func (s *ReporterStats) IncrementCaptured() { atomic.AddInt64(&s.Captured, 1) }

// IncrementPersisted atomically increments the persisted counter
func (s *ReporterStats) IncrementPersisted() { atomic.AddInt64(&s.Persisted, 1) }

// IncrementSent atomically increments the sent counter
func (s *ReporterStats) IncrementSent() { atomic.AddInt64(&s.Sent, 1) }

// IncrementSendFailures atomically increments the send failure counter
func (s *ReporterStats) IncrementSendFailures() { atomic.AddInt64(&s.SendFailures, 1) }

// IncrementDeduplicated atomically increments the dedup counter
func (s *ReporterStats) IncrementDeduplicated() { atomic.AddInt64(&s.Deduplicated, 1) }

// IncrementSampledOut atomically increments the sampled-out counter
func (s *ReporterStats) IncrementSampledOut() { atomic.AddInt64(&s.SampledOut, 1) }

// IncrementANRDetected atomically increments the ANR detection counter
func (s *ReporterStats) IncrementANRDetected() { atomic.AddInt64(&s.ANRDetected, 1) }

// IncrementANRRejected atomically increments the ANR rejection counter
func (s *ReporterStats) IncrementANRRejected() { atomic.AddInt64(&s.ANRRejected, 1) }

// IncrementBrakeTrips atomically increments the safety-brake counter
func (s *ReporterStats) IncrementBrakeTrips() { atomic.AddInt64(&s.BrakeTrips, 1) }

// Snapshot returns a consistent copy of the counters
func (s *ReporterStats) Snapshot() ReporterStats {
	return ReporterStats{
		Captured:     atomic.LoadInt64(&s.Captured),
		Persisted:    atomic.LoadInt64(&s.Persisted),
		Sent:         atomic.LoadInt64(&s.Sent),
		SendFailures: atomic.LoadInt64(&s.SendFailures),
		Deduplicated: atomic.LoadInt64(&s.Deduplicated),
		SampledOut:   atomic.LoadInt64(&s.SampledOut),
		ANRDetected:  atomic.LoadInt64(&s.ANRDetected),
		ANRRejected:  atomic.LoadInt64(&s.ANRRejected),
		BrakeTrips:   atomic.LoadInt64(&s.BrakeTrips),
	}
}
