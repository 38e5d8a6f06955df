/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: crashstore.go
Description: Durable crash record queue for Akaylee CrashKit. Records are
persisted as one JSON file per crash under pending/ before any network
attempt; acknowledged records move to sent/ by rename so the pending
directory always equals the set of undelivered records. Writes go through a
temp file, fsync and rename so a crash mid-write never leaves a truncated
record in the queue.
*/

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// SentRetention is how long delivered records are kept in sent/
const SentRetention = 7 * 24 * time.Hour

const (
	pendingDirName = "pending"
	sentDirName    = "sent"
)

// CrashStore is a directory-backed queue of crash records
type CrashStore struct {
	pendingDir string
	sentDir    string
	logger     *logrus.Logger
}

// NewCrashStore creates (or reopens) the queue under dataDir/crashes
func NewCrashStore(dataDir string, logger *logrus.Logger) (*CrashStore, error) {
	root := filepath.Join(dataDir, "crashes")
	s := &CrashStore{
		pendingDir: filepath.Join(root, pendingDirName),
		sentDir:    filepath.Join(root, sentDirName),
		logger:     logger,
	}
	if err := os.MkdirAll(s.pendingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}
	if err := os.MkdirAll(s.sentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sent directory: %w", err)
	}
	return s, nil
}

// recordFileName returns the on-disk name for a record ID
func recordFileName(id string) string {
	return "crash_" + id + ".json"
}

// Save persists a record into pending/ before returning. The write goes to a
// temp file, is fsynced, then renamed into place.
func (s *CrashStore) Save(record *core.CrashRecord) error {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode crash record %s: %w", record.ID, err)
	}

	final := filepath.Join(s.pendingDir, recordFileName(record.ID))
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create crash record file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write crash record %s: %w", record.ID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync crash record %s: %w", record.ID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close crash record %s: %w", record.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit crash record %s: %w", record.ID, err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"crash_id": record.ID,
			"kind":     record.Kind,
		}).Debug("Crash record persisted")
	}
	return nil
}

// Load reads a pending record by ID
func (s *CrashStore) Load(id string) (*core.CrashRecord, error) {
	raw, err := os.ReadFile(filepath.Join(s.pendingDir, recordFileName(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to read crash record %s: %w", id, err)
	}
	var record core.CrashRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode crash record %s: %w", id, err)
	}
	return &record, nil
}

// ListPending returns the IDs of all undelivered records, oldest first
func (s *CrashStore) ListPending() ([]string, error) {
	entries, err := os.ReadDir(s.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}

	type pending struct {
		id  string
		mod time.Time
	}
	var records []pending
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "crash_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "crash_"), ".json")
		records = append(records, pending{id: id, mod: info.ModTime()})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].mod.Before(records[j].mod)
	})

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.id
	}
	return ids, nil
}

// PendingCount returns the number of undelivered records
func (s *CrashStore) PendingCount() int {
	ids, err := s.ListPending()
	if err != nil {
		return 0
	}
	return len(ids)
}

// MarkSent moves a delivered record from pending/ into sent/
func (s *CrashStore) MarkSent(id string) error {
	name := recordFileName(id)
	if err := os.Rename(filepath.Join(s.pendingDir, name), filepath.Join(s.sentDir, name)); err != nil {
		return fmt.Errorf("failed to mark crash record %s sent: %w", id, err)
	}
	return nil
}

// Delete removes a pending record without delivering it
func (s *CrashStore) Delete(id string) error {
	if err := os.Remove(filepath.Join(s.pendingDir, recordFileName(id))); err != nil {
		return fmt.Errorf("failed to delete crash record %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes every record, pending and sent
func (s *CrashStore) DeleteAll() error {
	for _, dir := range []string{s.pendingDir, s.sentDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}

// CleanupOldSent removes delivered records older than the retention window
func (s *CrashStore) CleanupOldSent() error {
	entries, err := os.ReadDir(s.sentDir)
	if err != nil {
		return fmt.Errorf("failed to list sent records: %w", err)
	}

	cutoff := time.Now().Add(-SentRetention)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.sentDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 && s.logger != nil {
		s.logger.WithField("removed", removed).Debug("Sent record cleanup")
	}
	return nil
}
