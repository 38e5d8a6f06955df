/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared interfaces for Akaylee CrashKit. Defines the capability
interfaces used across all packages to break import cycles and enable proper
modular design. Components receive these as small capabilities rather than
reaching for ambient globals, so tests can supply doubles.
*/

package interfaces

import (
	"time"
)

// ProcessImportance represents the host process visibility level at a point in time
type ProcessImportance string

const (
	ImportanceForeground ProcessImportance = "FOREGROUND"
	ImportanceVisible    ProcessImportance = "VISIBLE"
	ImportanceService    ProcessImportance = "SERVICE"
	ImportanceBackground ProcessImportance = "BACKGROUND"
	ImportanceUnknown    ProcessImportance = "UNKNOWN"
)

// MemoryPressure represents the platform memory pressure level
type MemoryPressure string

const (
	MemoryPressureLow      MemoryPressure = "LOW"
	MemoryPressureModerate MemoryPressure = "MODERATE"
	MemoryPressureHigh     MemoryPressure = "HIGH"
	MemoryPressureCritical MemoryPressure = "CRITICAL"
	MemoryPressureUnknown  MemoryPressure = "UNKNOWN"
)

// Orientation represents the device screen orientation
type Orientation string

const (
	OrientationPortrait  Orientation = "PORTRAIT"
	OrientationLandscape Orientation = "LANDSCAPE"
	OrientationUnknown   Orientation = "UNKNOWN"
)

// DeviceOracle provides pull-style queries over device and process state.
// Every query returns a safe default on failure; none may panic or block
// beyond a small bounded time.
type DeviceOracle interface {
	// ProcessImportance returns the current process visibility level
	ProcessImportance() ProcessImportance

	// ScreenOn reports whether the screen is currently on
	ScreenOn() bool

	// PowerSave reports whether the platform power-save mode is active
	PowerSave() bool

	// BatteryFraction returns the battery charge level in 0..1
	BatteryFraction() float64

	// Charging reports whether the device is currently charging
	Charging() bool

	// Orientation returns the current screen orientation
	Orientation() Orientation

	// MemoryPressure returns the current platform memory pressure level
	MemoryPressure() MemoryPressure

	// VPNActive reports whether a VPN transport is active
	VPNActive() bool

	// ProxyActive reports whether an HTTP proxy is configured
	ProxyActive() bool

	// BootTimeMs returns the epoch milliseconds of the last system boot
	BootTimeMs() int64

	// UptimeMs returns milliseconds since system boot
	UptimeMs() int64

	// TimezoneID returns the IANA timezone identifier
	TimezoneID() string

	// NetworkType returns a short tag for the active network transport
	NetworkType() string

	// NetworkLostRecently reports whether connectivity was lost within the window
	NetworkLostRecently(window time.Duration) bool

	// DiskThroughput performs the synchronous disk probe and returns
	// write/read throughput in bytes per second (zero when disabled or failed)
	DiskThroughput() (writeBps float64, readBps float64)
}

// MainLooper runs small tasks on the serialized UI-equivalent thread.
// The ANR watchdog posts its liveness ping through this capability.
type MainLooper interface {
	// Post schedules fn on the main loop; it must never block the caller
	Post(fn func())

	// ThreadName returns the name of the main loop thread, or "" if unknown
	ThreadName() string

	// StackTrace returns the rendered stack of the main loop thread,
	// or "" if it cannot be identified
	StackTrace() string
}

// Transport delivers a serialized crash payload to the ingestion endpoint
type Transport interface {
	// Post sends body to path relative to the configured base URL.
	// Returns the HTTP status code; any 2xx is success.
	Post(path string, body []byte, headers map[string]string) (int, error)
}
