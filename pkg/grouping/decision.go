/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: decision.go
Description: Send decision gate for Akaylee CrashKit. Orders the cost
controls in front of the transport: persistent seven-day dedup first, then
session dedup, then sampling for non-fatal records, and finally the
immediate-versus-batch split for records that pass. Fatal records are never
sampled out.
*/

package grouping

import (
	"math/rand"
	"sync"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// Decision is the gate's verdict for one record
type Decision int

const (
	// SendImmediately delivers a fatal record on its own request
	SendImmediately Decision = iota
	// AddToBatch queues a non-fatal record for the next batch flush
	AddToBatch
	// IncrementOnly counts a duplicate without a full payload
	IncrementOnly
	// Skip drops a sampled-out record entirely
	Skip
)

// String returns the decision tag for logging
func (d Decision) String() string {
	switch d {
	case SendImmediately:
		return "send_immediately"
	case AddToBatch:
		return "add_to_batch"
	case IncrementOnly:
		return "increment_only"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// DefaultSampleRate is the fraction of non-fatal records that get a full payload
const DefaultSampleRate = 0.15

// Gate applies the ordered send decision
type Gate struct {
	fingerprints *storage.FingerprintStore
	sampleRate   float64

	mu      sync.Mutex
	session map[string]int // fingerprint -> occurrences this session

	// random is swappable for seeded sampling tests
	random func() float64
}

// NewGate creates a decision gate over the persistent fingerprint store
func NewGate(fingerprints *storage.FingerprintStore, sampleRate float64) *Gate {
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = DefaultSampleRate
	}
	return &Gate{
		fingerprints: fingerprints,
		sampleRate:   sampleRate,
		session:      make(map[string]int),
		random:       rand.Float64,
	}
}

// Decide runs a record through the gate. The occurrence count accompanies
// IncrementOnly verdicts.
func (g *Gate) Decide(record *core.CrashRecord) (Decision, int) {
	fp := record.Fingerprint
	fatal := IsFatal(record)

	// Persistent dedup: one full payload per fingerprint per week
	if g.fingerprints != nil && g.fingerprints.WasRecentlyReported(fp) {
		return IncrementOnly, g.bumpSession(fp)
	}

	g.mu.Lock()
	count, seen := g.session[fp]
	g.session[fp] = count + 1
	if seen {
		g.mu.Unlock()
		return IncrementOnly, count + 1
	}

	// Sampling applies to non-fatal records only
	if !fatal && g.random() < (1-g.sampleRate) {
		// Forget the fingerprint so a later fatal occurrence still sends
		delete(g.session, fp)
		g.mu.Unlock()
		return Skip, 0
	}
	g.mu.Unlock()

	if g.fingerprints != nil {
		g.fingerprints.MarkAsReported(fp)
	}
	if fatal {
		return SendImmediately, 1
	}
	return AddToBatch, 1
}

// SetSamplingSource replaces the sampling random source so callers can
// seed or pin the sampling decision
func (g *Gate) SetSamplingSource(random func() float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if random != nil {
		g.random = random
	}
}

// bumpSession increments and returns the session occurrence count
func (g *Gate) bumpSession(fp string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session[fp]++
	return g.session[fp]
}

// ResetSession clears the in-session dedup set
func (g *Gate) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = make(map[string]int)
}
