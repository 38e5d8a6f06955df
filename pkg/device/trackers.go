/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: trackers.go
Description: Memory and network event trackers for Akaylee CrashKit. Keep a
bounded tail of platform memory-pressure callbacks and connectivity
transitions so crash records can carry the recent history. Both trackers are
ring-bounded; oldest entries are evicted on overflow.
*/

package device

import (
	"sync"
	"time"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

const maxTrackedEvents = 10

// MemoryTracker keeps the bounded tail of memory-pressure events
type MemoryTracker struct {
	mu     sync.Mutex
	events []core.MemoryEvent
}

// NewMemoryTracker creates an empty memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

// Record appends a memory-pressure event, evicting the oldest on overflow
func (t *MemoryTracker) Record(level interfaces.MemoryPressure, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, core.MemoryEvent{
		Timestamp:   time.Now(),
		Level:       level,
		Description: description,
	})
	if len(t.events) > maxTrackedEvents {
		t.events = t.events[len(t.events)-maxTrackedEvents:]
	}
}

// Snapshot returns a copy of the tracked events in insertion order
func (t *MemoryTracker) Snapshot() []core.MemoryEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.MemoryEvent, len(t.events))
	copy(out, t.events)
	return out
}

// NetworkTracker keeps the bounded tail of connectivity transitions and the
// time of the most recent loss, which the ANR validation engine queries.
type NetworkTracker struct {
	mu       sync.Mutex
	events   []core.NetworkEvent
	lastLost time.Time
}

// NewNetworkTracker creates an empty network tracker
func NewNetworkTracker() *NetworkTracker {
	return &NetworkTracker{}
}

// RecordTransition appends a connectivity transition, evicting the oldest on overflow
func (t *NetworkTracker) RecordTransition(kind string, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.events = append(t.events, core.NetworkEvent{
		Timestamp:   now,
		Kind:        kind,
		Description: description,
	})
	if len(t.events) > maxTrackedEvents {
		t.events = t.events[len(t.events)-maxTrackedEvents:]
	}
	if kind == "lost" {
		t.lastLost = now
	}
}

// LostWithin reports whether connectivity was lost within the window
func (t *NetworkTracker) LostWithin(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastLost.IsZero() {
		return false
	}
	return time.Since(t.lastLost) <= window
}

// Snapshot returns a copy of the tracked events in insertion order
func (t *NetworkTracker) Snapshot() []core.NetworkEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.NetworkEvent, len(t.events))
	copy(out, t.events)
	return out
}
