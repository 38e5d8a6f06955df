/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: oracle.go
Description: Device state oracle for Akaylee CrashKit. Provides pull-style
queries over process importance, screen state, power mode, battery, memory
pressure, network and timing state. Platform-specific readings come from host
hooks supplied by the embedding layer; everything else falls back to /proc
and /sys reads with safe defaults. No query panics or blocks beyond a small
bounded time, with the single exception of the opt-in disk throughput probe.
*/

package device

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

const diskProbeSize = 1 << 20 // 1 MiB write+read

// HostHooks are optional platform callbacks supplied by the embedding layer.
// Any nil hook falls back to a safe default.
type HostHooks struct {
	ProcessImportance func() interfaces.ProcessImportance
	ScreenOn          func() bool
	PowerSave         func() bool
	BatteryFraction   func() float64
	Charging          func() bool
	Orientation       func() interfaces.Orientation
	MemoryPressure    func() interfaces.MemoryPressure
	VPNActive         func() bool
	ProxyActive       func() bool
	NetworkType       func() string
	LowMemory         func() bool
	StorageStats      func() (available uint64, total uint64)
}

// Oracle implements interfaces.DeviceOracle over host hooks and /proc reads
type Oracle struct {
	hooks           HostHooks
	cacheDir        string
	enableDiskProbe bool
	logger          *logrus.Logger

	network *NetworkTracker
}

// NewOracle creates a device state oracle.
// The network tracker is consulted for connectivity-loss queries.
func NewOracle(hooks HostHooks, cacheDir string, enableDiskProbe bool, network *NetworkTracker, logger *logrus.Logger) *Oracle {
	return &Oracle{
		hooks:           hooks,
		cacheDir:        cacheDir,
		enableDiskProbe: enableDiskProbe,
		logger:          logger,
		network:         network,
	}
}

// ProcessImportance returns the current process visibility level.
// Hook-less hosts report Foreground so that downstream heuristics never
// suppress a report for lack of platform data.
func (o *Oracle) ProcessImportance() interfaces.ProcessImportance {
	if o.hooks.ProcessImportance != nil {
		return o.hooks.ProcessImportance()
	}
	return interfaces.ImportanceForeground
}

// ScreenOn reports whether the screen is currently on
func (o *Oracle) ScreenOn() bool {
	if o.hooks.ScreenOn != nil {
		return o.hooks.ScreenOn()
	}
	return true
}

// PowerSave reports whether the platform power-save mode is active
func (o *Oracle) PowerSave() bool {
	if o.hooks.PowerSave != nil {
		return o.hooks.PowerSave()
	}
	return false
}

// BatteryFraction returns the battery charge level in 0..1
func (o *Oracle) BatteryFraction() float64 {
	if o.hooks.BatteryFraction != nil {
		f := o.hooks.BatteryFraction()
		if f >= 0 && f <= 1 {
			return f
		}
	}
	if f, ok := readBatteryCapacity(); ok {
		return f
	}
	return 1.0
}

// Charging reports whether the device is currently charging
func (o *Oracle) Charging() bool {
	if o.hooks.Charging != nil {
		return o.hooks.Charging()
	}
	return false
}

// Orientation returns the current screen orientation
func (o *Oracle) Orientation() interfaces.Orientation {
	if o.hooks.Orientation != nil {
		return o.hooks.Orientation()
	}
	return interfaces.OrientationUnknown
}

// MemoryPressure returns the current platform memory pressure level.
// Without a host hook the level is derived from /proc/meminfo availability.
func (o *Oracle) MemoryPressure() interfaces.MemoryPressure {
	if o.hooks.MemoryPressure != nil {
		return o.hooks.MemoryPressure()
	}
	avail, total := readMemInfo()
	if total == 0 {
		return interfaces.MemoryPressureUnknown
	}
	ratio := float64(avail) / float64(total)
	switch {
	case ratio < 0.05:
		return interfaces.MemoryPressureCritical
	case ratio < 0.10:
		return interfaces.MemoryPressureHigh
	case ratio < 0.25:
		return interfaces.MemoryPressureModerate
	default:
		return interfaces.MemoryPressureLow
	}
}

// VPNActive reports whether a VPN transport is active
func (o *Oracle) VPNActive() bool {
	if o.hooks.VPNActive != nil {
		return o.hooks.VPNActive()
	}
	return false
}

// ProxyActive reports whether an HTTP proxy is configured
func (o *Oracle) ProxyActive() bool {
	if o.hooks.ProxyActive != nil {
		return o.hooks.ProxyActive()
	}
	return os.Getenv("HTTPS_PROXY") != "" || os.Getenv("HTTP_PROXY") != ""
}

// NetworkType returns a short tag for the active network transport
func (o *Oracle) NetworkType() string {
	if o.hooks.NetworkType != nil {
		return o.hooks.NetworkType()
	}
	return "unknown"
}

// NetworkLostRecently reports whether connectivity was lost within the window
func (o *Oracle) NetworkLostRecently(window time.Duration) bool {
	if o.network == nil {
		return false
	}
	return o.network.LostWithin(window)
}

// BootTimeMs returns the epoch milliseconds of the last system boot
func (o *Oracle) BootTimeMs() int64 {
	if bt, ok := readBootTime(); ok {
		return bt.UnixMilli()
	}
	return 0
}

// UptimeMs returns milliseconds since system boot
func (o *Oracle) UptimeMs() int64 {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return int64(secs * 1000)
}

// TimezoneID returns the IANA timezone identifier
func (o *Oracle) TimezoneID() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	name, _ := time.Now().Zone()
	return name
}

// DiskThroughput performs one 1 MiB write+read probe in the cache directory.
// Returns zero metrics when disabled or on any failure; the temp file is
// always removed before returning.
func (o *Oracle) DiskThroughput() (float64, float64) {
	if !o.enableDiskProbe {
		return 0, 0
	}

	path := filepath.Join(o.cacheDir, ".crashkit_disk_probe")
	defer os.Remove(path)

	buf := make([]byte, diskProbeSize)

	writeStart := time.Now()
	if err := os.WriteFile(path, buf, 0600); err != nil {
		if o.logger != nil {
			o.logger.WithError(err).Debug("Disk probe write failed")
		}
		return 0, 0
	}
	writeDur := time.Since(writeStart)

	readStart := time.Now()
	if _, err := os.ReadFile(path); err != nil {
		if o.logger != nil {
			o.logger.WithError(err).Debug("Disk probe read failed")
		}
		return 0, 0
	}
	readDur := time.Since(readStart)

	if writeDur <= 0 || readDur <= 0 {
		return 0, 0
	}
	return diskProbeSize / writeDur.Seconds(), diskProbeSize / readDur.Seconds()
}

// StateSnapshot fills a volatile device-state snapshot in one pass
func (o *Oracle) StateSnapshot() *core.DeviceStateSnapshot {
	avail, total := readMemInfo()
	var storageAvail, storageTotal uint64
	if o.hooks.StorageStats != nil {
		storageAvail, storageTotal = o.hooks.StorageStats()
	}
	lowMemory := false
	if o.hooks.LowMemory != nil {
		lowMemory = o.hooks.LowMemory()
	} else {
		p := o.MemoryPressure()
		lowMemory = p == interfaces.MemoryPressureHigh || p == interfaces.MemoryPressureCritical
	}
	writeBps, readBps := o.DiskThroughput()

	return &core.DeviceStateSnapshot{
		BatteryFraction:  o.BatteryFraction(),
		Charging:         o.Charging(),
		MemoryAvailable:  avail,
		MemoryTotal:      total,
		StorageAvailable: storageAvail,
		StorageTotal:     storageTotal,
		ScreenOn:         o.ScreenOn(),
		Orientation:      o.Orientation(),
		LowMemory:        lowMemory,
		PowerSave:        o.PowerSave(),
		UptimeMs:         o.UptimeMs(),
		BootTimeMs:       o.BootTimeMs(),
		DiskWriteBps:     writeBps,
		DiskReadBps:      readBps,
	}
}

// NetworkSnapshot fills the network configuration snapshot
func (o *Oracle) NetworkSnapshot() *core.NetworkSnapshot {
	return &core.NetworkSnapshot{
		Type:        o.NetworkType(),
		VPNActive:   o.VPNActive(),
		ProxyActive: o.ProxyActive(),
	}
}

// MemoryInfo fills process heap information from the runtime
func (o *Oracle) MemoryInfo() *core.MemoryInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &core.MemoryInfo{
		HeapUsed:        ms.HeapAlloc,
		HeapMax:         ms.HeapSys,
		NativeHeapUsed:  ms.Sys - ms.HeapSys,
		NativeHeapTotal: ms.Sys,
		Goroutines:      runtime.NumGoroutine(),
		GCCount:         ms.NumGC,
	}
}

// CPUInfo fills processor details
func (o *Oracle) CPUInfo() *core.CPUInfo {
	return &core.CPUInfo{
		Cores:        runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		ABI:          runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// ProcessInfo fills the identity of the current process
func (o *Oracle) ProcessInfo(name string) *core.ProcessInfo {
	importance := o.ProcessImportance()
	return &core.ProcessInfo{
		PID:        os.Getpid(),
		Name:       name,
		Importance: importance,
		Foreground: importance == interfaces.ImportanceForeground,
	}
}

// readMemInfo reads MemAvailable/MemTotal from /proc/meminfo in bytes
func readMemInfo() (avail uint64, total uint64) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb * 1024
		case "MemAvailable:":
			avail = kb * 1024
		}
	}
	return avail, total
}

// readBootTime reads the btime field from /proc/stat
func readBootTime() (time.Time, bool) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return time.Time{}, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}

// readBatteryCapacity reads the first power_supply capacity entry
func readBatteryCapacity() (float64, bool) {
	matches, err := filepath.Glob("/sys/class/power_supply/*/capacity")
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return float64(pct) / 100.0, true
}
