/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: watchdog.go
Description: ANR watchdog for Akaylee CrashKit. A daemon goroutine posts a
liveness ping to the main loop, sleeps for a power-adjusted interval, and on
wake compares the time since the last ping against the adjusted threshold.
Stalls past the threshold are snapshotted at detection time (process
importance, screen state), classified by the validation engine, and handed
to the report callback under a cooldown so one frozen loop cannot storm the
pipeline. Pause parks the checks without resetting the ping; resume
re-primes it so paused time is never counted as a stall.
*/

package anr

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

// ReportCooldown is the minimum spacing between two ANR reports
const ReportCooldown = 30 * time.Second

// State is the watchdog lifecycle state
type State int32

const (
	StateRunning State = iota
	StatePaused
	StateStopped
)

// ReportFunc receives validated ANRs: the measured stall, the verdict, and
// the main-loop stack captured at detection time
type ReportFunc func(blockedMs int64, verdict *core.ANRValidation, mainStack string)

// Watchdog detects main-loop stalls
type Watchdog struct {
	looper    interfaces.MainLooper
	oracle    interfaces.DeviceOracle
	validator *Validator
	report    ReportFunc
	logger    *logrus.Logger

	mu         sync.Mutex
	state      State
	lastPing   time.Time
	lastReport time.Time
	stopCh     chan struct{}
	started    bool

	// now and interval are swappable for deterministic tests
	now      func() time.Time
	interval func(adjustedMs int64) time.Duration
}

// NewWatchdog wires a watchdog; Start launches the daemon goroutine
func NewWatchdog(looper interfaces.MainLooper, oracle interfaces.DeviceOracle, validator *Validator, report ReportFunc, logger *logrus.Logger) *Watchdog {
	return &Watchdog{
		looper:    looper,
		oracle:    oracle,
		validator: validator,
		report:    report,
		logger:    logger,
		state:     StateStopped,
		stopCh:    make(chan struct{}),
		now:       time.Now,
		interval: func(adjustedMs int64) time.Duration {
			return time.Duration(adjustedMs) * time.Millisecond
		},
	}
}

// Start launches the daemon goroutine. Calling Start twice is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	w.state = StateRunning
	w.lastPing = w.now()

	go w.run()
	if w.logger != nil {
		w.logger.Info("ANR watchdog started")
	}
}

// Pause parks the stall checks. The ping is left untouched; resume
// re-primes it.
func (w *Watchdog) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateRunning {
		w.state = StatePaused
	}
}

// Resume restarts stall checks and re-primes the ping so paused time is
// not counted as a stall.
func (w *Watchdog) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StatePaused {
		w.state = StateRunning
		w.lastPing = w.now()
	}
}

// Stop terminates the daemon goroutine. Terminal; a stopped watchdog is
// never restarted.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped && !w.started {
		return
	}
	if w.state != StateStopped {
		w.state = StateStopped
		close(w.stopCh)
	}
}

// State returns the current lifecycle state
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// adjustedThresholdMs returns the threshold after the power adjustment
func (w *Watchdog) adjustedThresholdMs() int64 {
	if w.oracle.PowerSave() || w.oracle.BatteryFraction() < LowBatteryFraction {
		return PowerSaveThresholdMs
	}
	return w.validator.thresholdMs
}

// run is the daemon loop: ping, sleep, check
func (w *Watchdog) run() {
	for {
		w.ping()

		adjusted := w.adjustedThresholdMs()
		timer := time.NewTimer(w.interval(adjusted))
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		w.check(adjusted)
	}
}

// ping posts the liveness task; the main loop updating lastPing is the
// proof it is still draining its queue
func (w *Watchdog) ping() {
	w.looper.Post(func() {
		w.mu.Lock()
		w.lastPing = w.now()
		w.mu.Unlock()
	})
}

// check measures the stall and dispatches validated ANRs under the cooldown
func (w *Watchdog) check(adjustedMs int64) {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return
	}
	blocked := w.now().Sub(w.lastPing)
	sinceReport := w.now().Sub(w.lastReport)
	w.mu.Unlock()

	blockedMs := blocked.Milliseconds()
	if blockedMs <= adjustedMs {
		return
	}
	if !w.lastReportZero() && sinceReport < ReportCooldown {
		if w.logger != nil {
			w.logger.WithField("blocked_ms", blockedMs).Debug("ANR suppressed by cooldown")
		}
		return
	}

	// Detection-time snapshots; everything later reads live state
	importance := w.oracle.ProcessImportance()
	screenOn := w.oracle.ScreenOn()

	verdict := w.validator.Validate(blockedMs, importance, screenOn)
	if !verdict.Valid {
		if w.logger != nil {
			w.logger.WithFields(logrus.Fields{
				"blocked_ms": blockedMs,
				"factor":     verdict.BlockingFactor,
				"confidence": verdict.Confidence,
			}).Info("ANR rejected by validation")
		}
		return
	}

	w.mu.Lock()
	w.lastReport = w.now()
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.WithFields(logrus.Fields{
			"blocked_ms": blockedMs,
			"confidence": verdict.Confidence,
		}).Warning("ANR detected")
	}
	if w.report != nil {
		w.report(blockedMs, verdict, w.looper.StackTrace())
	}
}

// lastReportZero reports whether no ANR has been reported yet
func (w *Watchdog) lastReportZero() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReport.IsZero()
}
