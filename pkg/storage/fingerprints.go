/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fingerprints.go
Description: Persistent fingerprint store for Akaylee CrashKit. Maps crash
fingerprints to the epoch milliseconds they were last reported, backed by a
single JSON file in the cache directory. A fingerprint reported within the
last seven days is a duplicate and must not produce another full payload.
Every mutation flushes to disk before returning; corrupt files are treated
as empty.
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

// FingerprintTTL is how long a reported fingerprint suppresses full payloads
const FingerprintTTL = 7 * 24 * time.Hour

// FingerprintFileName is the on-disk artifact under the cache directory
const FingerprintFileName = "crash_fingerprints.json"

// FingerprintStore persists fingerprint -> last-reported epoch ms
type FingerprintStore struct {
	mu     sync.Mutex
	path   string
	data   map[string]int64
	logger *logrus.Logger

	// now is swappable for aging tests
	now func() time.Time
}

// NewFingerprintStore loads (or creates) the store under cacheDir
func NewFingerprintStore(cacheDir string, logger *logrus.Logger) (*FingerprintStore, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &FingerprintStore{
		path:   filepath.Join(cacheDir, FingerprintFileName),
		data:   make(map[string]int64),
		logger: logger,
		now:    time.Now,
	}
	s.load()
	return s, nil
}

// load reads the JSON file; corrupt or missing files leave the store empty
func (s *FingerprintStore) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var parsed map[string]int64
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warning("Fingerprint store corrupt, starting empty")
		}
		return
	}
	s.data = parsed
}

// flush writes the map to disk; called with the mutex held
func (s *FingerprintStore) flush() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write fingerprint store: %w", err)
	}
	return nil
}

// WasRecentlyReported reports whether fp was reported within the TTL
func (s *FingerprintStore) WasRecentlyReported(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportedMs, ok := s.data[fp]
	if !ok {
		return false
	}
	age := s.now().UnixMilli() - reportedMs
	return age >= 0 && age <= FingerprintTTL.Milliseconds()
}

// MarkAsReported records fp as reported now and persists immediately
func (s *FingerprintStore) MarkAsReported(fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[fp] = s.now().UnixMilli()
	return s.flush()
}

// PeriodicCleanup removes entries older than the TTL, rewriting the file
// only when something was removed
func (s *FingerprintStore) PeriodicCleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UnixMilli() - FingerprintTTL.Milliseconds()
	removed := 0
	for fp, reportedMs := range s.data {
		if reportedMs < cutoff {
			delete(s.data, fp)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	if s.logger != nil {
		s.logger.WithField("removed", removed).Debug("Fingerprint store cleanup")
	}
	return s.flush()
}

// Len returns the number of retained fingerprints
func (s *FingerprintStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
