/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: startup.go
Description: Startup state store for Akaylee CrashKit. Persists the launch
marker, crash timestamps and the startup-crash counter in a single JSON file
so the next launch can tell whether the previous one died before finishing
initialization. Feeds the crash-loop detector and the safety brake that
disables capture when the process keeps dying right after boot.
*/

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StartupFileName is the on-disk artifact under the data directory
const StartupFileName = "startup_state.json"

// StartupCrashWindow is how soon after launch a crash counts as a startup crash
const StartupCrashWindow = 5 * time.Second

// CrashLoopWindow is the window the crash-loop detector looks back over
const CrashLoopWindow = 60 * time.Second

// CrashLoopThreshold is how many startup crashes inside the window mean a loop
const CrashLoopThreshold = 3

// SafetyBrakeThreshold is how many startup crashes trip the capture brake
const SafetyBrakeThreshold = 5

// startupState is the persisted shape of the store
type startupState struct {
	AppStarted        bool  `json:"app_started"`         // true while a launch is in flight
	AppStartedTime    int64 `json:"app_started_time"`    // epoch ms of the current launch
	StartupCrashCount int   `json:"startup_crash_count"` // consecutive startup crashes
	LastCrashTime     int64 `json:"last_crash_time"`     // epoch ms of the most recent crash
}

// StartupStore tracks launch lifecycle and startup-crash history
type StartupStore struct {
	mu     sync.Mutex
	path   string
	state  startupState
	logger *logrus.Logger

	// prevStarted remembers whether the previous launch never finished
	prevStarted bool

	// braked latches once the safety brake trips
	braked bool

	// now is swappable for window tests
	now func() time.Time
}

// NewStartupStore loads (or creates) the store under dataDir
func NewStartupStore(dataDir string, logger *logrus.Logger) (*StartupStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &StartupStore{
		path:   filepath.Join(dataDir, StartupFileName),
		logger: logger,
		now:    time.Now,
	}
	s.load()
	return s, nil
}

// load reads the JSON file; corrupt or missing files leave the store zeroed
func (s *StartupStore) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var parsed startupState
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warning("Startup state corrupt, starting empty")
		}
		return
	}
	s.state = parsed
}

// flush writes the state to disk; called with the mutex held
func (s *StartupStore) flush() error {
	raw, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to encode startup state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write startup state: %w", err)
	}
	return nil
}

// MarkStarted records that a launch is beginning. The previous launch marker
// is captured first so DidCrashOnStartup can report whether the last launch
// died before MarkInitialized.
func (s *StartupStore) MarkStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prevStarted = s.state.AppStarted
	s.state.AppStarted = true
	s.state.AppStartedTime = s.now().UnixMilli()
	return s.flush()
}

// MarkInitialized clears the launch marker once startup completed cleanly
// and resets the startup-crash counter.
func (s *StartupStore) MarkInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.AppStarted = false
	s.state.StartupCrashCount = 0
	return s.flush()
}

// DidCrashOnStartup reports whether the previous launch died before it
// finished initializing. Only meaningful after MarkStarted.
func (s *StartupStore) DidCrashOnStartup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevStarted
}

// RecordCrash notes a crash at the current time. Crashes inside the startup
// window also bump the startup-crash counter; later crashes reset it.
func (s *StartupStore) RecordCrash() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	s.state.LastCrashTime = nowMs

	sinceStart := nowMs - s.state.AppStartedTime
	if s.state.AppStartedTime > 0 && sinceStart >= 0 && sinceStart < StartupCrashWindow.Milliseconds() {
		s.state.StartupCrashCount++
		if s.logger != nil {
			s.logger.WithField("count", s.state.StartupCrashCount).Warning("Startup crash recorded")
		}
	} else {
		s.state.StartupCrashCount = 0
	}
	return s.flush()
}

// IsInCrashLoop reports whether enough startup crashes landed inside the
// loop window. A stale last-crash time outside the window resets the counter.
func (s *StartupStore) IsInCrashLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.StartupCrashCount < CrashLoopThreshold {
		return false
	}
	if s.state.LastCrashTime == 0 {
		return false
	}
	age := s.now().UnixMilli() - s.state.LastCrashTime
	if age > CrashLoopWindow.Milliseconds() {
		s.state.StartupCrashCount = 0
		s.flush()
		return false
	}
	return true
}

// ShouldDisableCapture reports whether the safety brake is tripped: too many
// startup crashes with the most recent one inside the loop window. When the
// brake is on, capture stays off for the rest of the process lifetime.
func (s *StartupStore) ShouldDisableCapture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.braked {
		return true
	}
	if s.state.StartupCrashCount < SafetyBrakeThreshold {
		return false
	}
	if s.state.LastCrashTime == 0 {
		return false
	}
	age := s.now().UnixMilli() - s.state.LastCrashTime
	s.braked = age >= 0 && age <= CrashLoopWindow.Milliseconds()
	return s.braked
}

// StartupCrashCount returns the current consecutive startup-crash counter
func (s *StartupStore) StartupCrashCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.StartupCrashCount
}
