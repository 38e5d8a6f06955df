/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sender.go
Description: Crash sender for Akaylee CrashKit. Applies the send decision to
every record, delivers fatal records immediately and batches the rest, with
exponential backoff on transport failure and a bounded batch queue that
drops oldest on overflow. Pending records from previous sessions are
re-driven through the full decision gate at a throttled rate so restarts
never bypass dedup or sampling.
*/

package sender

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/grouping"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// Ingestion endpoint and retry policy
const (
	IngestPath        = "/api/crashes"
	MaxSendAttempts   = 3                // retries after the first failure
	InitialBackoff    = 5 * time.Second  // doubles per retry
	MaxBackoff        = 60 * time.Second // backoff ceiling
	MaxBatchSize      = 100              // queue bound, oldest drops
	BatchFlushCount   = 10               // flush when the queue reaches this
	BatchFlushPeriod  = 60 * time.Second // flush at least this often
	DefaultPerMinute  = 10               // SendAllPending throttle
)

// Sender owns the transport side of the pipeline
type Sender struct {
	transport interfaces.Transport
	store     *storage.CrashStore
	gate      *grouping.Gate
	stats     *core.ReporterStats
	logger    *logrus.Logger
	userAgent string

	mu        sync.Mutex
	batch     []*core.CrashRecord
	lastFlush time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	// sleep is swappable so retry and throttle schedules are testable
	sleep func(time.Duration)
}

// NewSender wires a sender over the transport, crash store and decision gate
func NewSender(transport interfaces.Transport, store *storage.CrashStore, gate *grouping.Gate, stats *core.ReporterStats, version string, logger *logrus.Logger) *Sender {
	s := &Sender{
		transport: transport,
		store:     store,
		gate:      gate,
		stats:     stats,
		logger:    logger,
		userAgent: "akaylee-crashkit/" + version,
		lastFlush: time.Now(),
		stopCh:    make(chan struct{}),
		sleep:     time.Sleep,
	}
	go s.flushLoop()
	return s
}

// Close stops the periodic flush loop after draining the batch
func (s *Sender) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.FlushBatch()
}

// Process runs a record through the decision gate and acts on the verdict.
// The record must already be grouped and persisted.
func (s *Sender) Process(record *core.CrashRecord) error {
	decision, count := s.gate.Decide(record)

	switch decision {
	case grouping.IncrementOnly:
		if s.stats != nil {
			s.stats.IncrementDeduplicated()
		}
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"fingerprint": record.Fingerprint,
				"occurrences": count,
			}).Debug("Duplicate crash counted")
		}
		// The duplicate's payload never ships; drop it from pending
		return s.store.Delete(record.ID)

	case grouping.Skip:
		if s.stats != nil {
			s.stats.IncrementSampledOut()
		}
		if s.logger != nil {
			s.logger.WithField("fingerprint", record.Fingerprint).Debug("Crash sampled out")
		}
		return s.store.Delete(record.ID)

	case grouping.SendImmediately:
		return s.Send(record)

	case grouping.AddToBatch:
		s.addToBatch(record)
		return nil
	}
	return nil
}

// Send optimizes, serializes and posts one record, retrying with
// exponential backoff. Success moves the record into sent/.
func (s *Sender) Send(record *core.CrashRecord) error {
	grouping.Optimize(record)
	body, err := grouping.MarshalClean(record)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"Content-Type":        "application/json",
		"User-Agent":          s.userAgent,
		"X-Crash-Fingerprint": record.Fingerprint,
		"X-Crash-Severity":    string(record.Severity),
	}

	backoff := InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= MaxSendAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(backoff)
			backoff *= 2
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
		}

		status, err := s.transport.Post(IngestPath, body, headers)
		if err == nil && status >= 200 && status < 300 {
			if s.stats != nil {
				s.stats.IncrementSent()
			}
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"crash_id":    record.ID,
					"fingerprint": record.Fingerprint,
					"status":      status,
					"attempts":    attempt + 1,
				}).Info("Crash delivered")
			}
			return s.store.MarkSent(record.ID)
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("ingestion endpoint returned status %d", status)
		}
		if s.logger != nil {
			s.logger.WithError(lastErr).WithFields(logrus.Fields{
				"crash_id": record.ID,
				"attempt":  attempt + 1,
			}).Warning("Crash delivery failed")
		}
	}

	// The record stays in pending/ for the next SendAllPending pass
	return fmt.Errorf("failed to deliver crash %s after %d attempts: %w", record.ID, MaxSendAttempts+1, lastErr)
}

// addToBatch enqueues a non-fatal record, dropping the oldest on overflow
func (s *Sender) addToBatch(record *core.CrashRecord) {
	s.mu.Lock()
	if len(s.batch) >= MaxBatchSize {
		dropped := s.batch[0]
		s.batch = s.batch[1:]
		if s.logger != nil {
			s.logger.WithField("crash_id", dropped.ID).Warning("Batch full, dropping oldest crash")
		}
	}
	s.batch = append(s.batch, record)
	size := len(s.batch)
	s.mu.Unlock()

	if size >= BatchFlushCount {
		s.FlushBatch()
	}
}

// FlushBatch sends every queued record individually
func (s *Sender) FlushBatch() {
	s.mu.Lock()
	pending := s.batch
	s.batch = nil
	s.lastFlush = time.Now()
	s.mu.Unlock()

	for _, record := range pending {
		if err := s.Send(record); err != nil && s.logger != nil {
			s.logger.WithError(err).WithField("crash_id", record.ID).Warning("Batch send failed")
		}
	}
}

// flushLoop flushes the batch on the periodic timer
func (s *Sender) flushLoop() {
	ticker := time.NewTicker(BatchFlushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastFlush) >= BatchFlushPeriod && len(s.batch) > 0
			s.mu.Unlock()
			if stale {
				s.FlushBatch()
			}
		}
	}
}

// SendAllPending re-drives every pending record through the decision gate,
// throttled to maxPerMinute items. Zero or negative uses the default.
func (s *Sender) SendAllPending(maxPerMinute int) error {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultPerMinute
	}
	gap := time.Duration(60_000/maxPerMinute) * time.Millisecond

	ids, err := s.store.ListPending()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if s.logger != nil {
		s.logger.WithField("pending", len(ids)).Info("Resending pending crashes")
	}

	for i, id := range ids {
		record, err := s.store.Load(id)
		if err != nil {
			if s.logger != nil {
				s.logger.WithError(err).WithField("crash_id", id).Warning("Pending crash unreadable, removing")
			}
			s.store.Delete(id)
			continue
		}
		if err := s.Process(record); err != nil && s.logger != nil {
			s.logger.WithError(err).WithField("crash_id", id).Warning("Pending crash resend failed")
		}
		if i < len(ids)-1 {
			s.sleep(gap)
		}
	}
	return nil
}
