/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: watchdog_test.go
Description: Tests for the ANR watchdog. Covers stall measurement against
the adjusted threshold, the 30-second report cooldown, the rule that
rejected detections do not consume the cooldown, pause/resume ping
re-priming, lifecycle transitions, and an end-to-end frozen-loop detection
through the daemon goroutine.
*/

package anr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// fakeLooper simulates the main loop; frozen loops drop posted tasks
type fakeLooper struct {
	mu     sync.Mutex
	frozen bool
}

func (l *fakeLooper) Post(fn func()) {
	l.mu.Lock()
	frozen := l.frozen
	l.mu.Unlock()
	if !frozen {
		fn()
	}
}

func (l *fakeLooper) ThreadName() string { return "main" }
func (l *fakeLooper) StackTrace() string { return "main.blockedCall()\nmain.main()" }

type reportRecorder struct {
	mu      sync.Mutex
	reports []int64
}

func (r *reportRecorder) record(blockedMs int64, verdict *core.ANRValidation, mainStack string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, blockedMs)
}

func (r *reportRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// newCheckWatchdog builds a watchdog primed for direct check() calls
// without the daemon goroutine
func newCheckWatchdog(oracle *fakeOracle, rec *reportRecorder) *Watchdog {
	validator := NewValidator(oracle, DefaultThresholdMs, nil)
	w := NewWatchdog(&fakeLooper{}, oracle, validator, rec.record, nil)
	w.state = StateRunning
	return w
}

func TestWatchdogCheckReportsStall(t *testing.T) {
	oracle := newFakeOracle()
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)

	base := time.Now()
	w.lastPing = base
	w.now = func() time.Time { return base.Add(17 * time.Second) }

	w.check(DefaultThresholdMs)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, int64(17000), rec.reports[0])
}

func TestWatchdogCheckIgnoresHealthyLoop(t *testing.T) {
	oracle := newFakeOracle()
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)

	base := time.Now()
	w.lastPing = base
	w.now = func() time.Time { return base.Add(2 * time.Second) }

	w.check(DefaultThresholdMs)
	assert.Equal(t, 0, rec.count())
}

func TestWatchdogCooldown(t *testing.T) {
	oracle := newFakeOracle()
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)

	base := time.Now()
	w.lastPing = base
	w.now = func() time.Time { return base.Add(17 * time.Second) }
	w.check(DefaultThresholdMs)
	require.Equal(t, 1, rec.count())

	// Still frozen ten seconds later: suppressed by the cooldown
	w.now = func() time.Time { return base.Add(27 * time.Second) }
	w.check(DefaultThresholdMs)
	assert.Equal(t, 1, rec.count())

	// Past the cooldown the same stall reports again
	w.now = func() time.Time { return base.Add(17*time.Second + ReportCooldown + time.Second) }
	w.check(DefaultThresholdMs)
	assert.Equal(t, 2, rec.count())
}

func TestWatchdogRejectedDetectionDoesNotConsumeCooldown(t *testing.T) {
	oracle := newFakeOracle()
	oracle.screenOn = false
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)

	base := time.Now()
	w.lastPing = base
	w.now = func() time.Time { return base.Add(17 * time.Second) }
	w.check(DefaultThresholdMs)
	require.Equal(t, 0, rec.count())

	// Screen comes back on; the next detection must not be cooldown-gated
	oracle.screenOn = true
	w.now = func() time.Time { return base.Add(18 * time.Second) }
	w.check(DefaultThresholdMs)
	assert.Equal(t, 1, rec.count())
}

func TestWatchdogPausedChecksAreParked(t *testing.T) {
	oracle := newFakeOracle()
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)
	w.state = StatePaused

	base := time.Now()
	w.lastPing = base
	w.now = func() time.Time { return base.Add(17 * time.Second) }

	w.check(DefaultThresholdMs)
	assert.Equal(t, 0, rec.count())
}

func TestWatchdogResumeReprimesPing(t *testing.T) {
	oracle := newFakeOracle()
	rec := &reportRecorder{}
	w := newCheckWatchdog(oracle, rec)

	base := time.Now()
	w.lastPing = base
	w.state = StatePaused

	// An hour passes while paused, then we resume
	w.now = func() time.Time { return base.Add(time.Hour) }
	w.Resume()

	// The paused hour must not read as a stall
	w.check(DefaultThresholdMs)
	assert.Equal(t, 0, rec.count())
}

func TestWatchdogLifecycle(t *testing.T) {
	oracle := newFakeOracle()
	validator := NewValidator(oracle, DefaultThresholdMs, nil)
	w := NewWatchdog(&fakeLooper{}, oracle, validator, nil, nil)

	assert.Equal(t, StateStopped, w.State())

	w.Start()
	assert.Equal(t, StateRunning, w.State())

	w.Pause()
	assert.Equal(t, StatePaused, w.State())

	// Resume only applies to a paused watchdog
	w.Resume()
	assert.Equal(t, StateRunning, w.State())

	w.Stop()
	assert.Equal(t, StateStopped, w.State())

	// Stop is terminal and idempotent
	w.Stop()
	assert.Equal(t, StateStopped, w.State())
}

func TestWatchdogStartTwiceIsNoOp(t *testing.T) {
	oracle := newFakeOracle()
	validator := NewValidator(oracle, DefaultThresholdMs, nil)
	w := NewWatchdog(&fakeLooper{}, oracle, validator, nil, nil)
	defer w.Stop()

	w.Start()
	w.Start()
	assert.Equal(t, StateRunning, w.State())
}

func TestWatchdogDetectsFrozenLoopEndToEnd(t *testing.T) {
	oracle := newFakeOracle()
	looper := &fakeLooper{frozen: true}

	var reported int32
	done := make(chan struct{})
	report := func(blockedMs int64, verdict *core.ANRValidation, mainStack string) {
		if atomic.CompareAndSwapInt32(&reported, 0, 1) {
			close(done)
		}
	}

	validator := NewValidator(oracle, 50, nil)
	w := NewWatchdog(looper, oracle, validator, report, nil)
	w.interval = func(adjustedMs int64) time.Duration { return 20 * time.Millisecond }
	defer w.Stop()

	w.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("frozen main loop was never reported")
	}
}

func TestWatchdogQuietOnResponsiveLoopEndToEnd(t *testing.T) {
	oracle := newFakeOracle()
	looper := &fakeLooper{}

	rec := &reportRecorder{}
	validator := NewValidator(oracle, 10000, nil)
	w := NewWatchdog(looper, oracle, validator, rec.record, nil)
	w.interval = func(adjustedMs int64) time.Duration { return 10 * time.Millisecond }
	defer w.Stop()

	w.Start()
	time.Sleep(200 * time.Millisecond)
	w.Stop()

	assert.Equal(t, 0, rec.count())
}
