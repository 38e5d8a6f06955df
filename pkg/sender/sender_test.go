/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sender_test.go
Description: Tests for the crash sender. Covers the exponential retry
schedule with a stubbed sleep, successful delivery moving the record into
sent/, failed delivery leaving the record pending, the batch flush trigger,
overflow dropping the oldest entry, and the throttled pending resend that
re-applies the decision gate.
*/

package sender

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/grouping"
	"github.com/kleascm/akaylee-crashkit/pkg/storage"
)

// fakeTransport scripts Post outcomes and records every call
type fakeTransport struct {
	mu       sync.Mutex
	statuses []int // consumed in order; the last value repeats
	err      error
	calls    int
	paths    []string
	headers  []map[string]string
	bodies   [][]byte
}

func (f *fakeTransport) Post(path string, body []byte, headers map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.paths = append(f.paths, path)
	f.headers = append(f.headers, headers)
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return 0, f.err
	}
	status := 200
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return status, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type senderFixture struct {
	sender    *Sender
	transport *fakeTransport
	store     *storage.CrashStore
	stats     *core.ReporterStats
	dataDir   string
	sleeps    *[]time.Duration
}

// newSenderFixture wires a sender over temp stores. Sampling is pinned to
// always-keep so only the tests that opt in exercise the sampling roll.
func newSenderFixture(t *testing.T, transport *fakeTransport) *senderFixture {
	t.Helper()

	dataDir := t.TempDir()
	store, err := storage.NewCrashStore(dataDir, nil)
	require.NoError(t, err)
	fingerprints, err := storage.NewFingerprintStore(t.TempDir(), nil)
	require.NoError(t, err)

	stats := &core.ReporterStats{}
	gate := grouping.NewGate(fingerprints, grouping.DefaultSampleRate)
	gate.SetSamplingSource(func() float64 { return 1.0 })

	s := NewSender(transport, store, gate, stats, "1.0.0", nil)
	t.Cleanup(s.Close)

	sleeps := &[]time.Duration{}
	s.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }

	return &senderFixture{sender: s, transport: transport, store: store, stats: stats, dataDir: dataDir, sleeps: sleeps}
}

func savedFatalRecord(t *testing.T, store *storage.CrashStore, fp string) *core.CrashRecord {
	t.Helper()
	record := core.NewCrashRecord(core.KindNativeSignal)
	record.Fingerprint = fp
	record.Severity = core.SeverityCritical
	require.NoError(t, store.Save(record))
	return record
}

func savedWorkerRecord(t *testing.T, store *storage.CrashStore, fp string) *core.CrashRecord {
	t.Helper()
	record := core.NewCrashRecord(core.KindUnhandledException)
	record.Fingerprint = fp
	record.ThreadName = "worker-1"
	require.NoError(t, store.Save(record))
	return record
}

func TestSendDeliversAndMarksSent(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)
	record := savedFatalRecord(t, fx.store, "aaaa1111bbbb2222")

	require.NoError(t, fx.sender.Send(record))

	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, IngestPath, transport.paths[0])
	assert.Equal(t, "application/json", transport.headers[0]["Content-Type"])
	assert.Equal(t, "akaylee-crashkit/1.0.0", transport.headers[0]["User-Agent"])
	assert.Equal(t, "aaaa1111bbbb2222", transport.headers[0]["X-Crash-Fingerprint"])

	// Delivery acknowledgement moves the record out of pending/
	assert.Equal(t, 0, fx.store.PendingCount())
	assert.Equal(t, int64(1), fx.stats.Snapshot().Sent)
}

func TestSendRetrySchedule(t *testing.T) {
	transport := &fakeTransport{err: errors.New("connection refused")}
	fx := newSenderFixture(t, transport)
	record := savedFatalRecord(t, fx.store, "cccc3333dddd4444")

	err := fx.sender.Send(record)
	require.Error(t, err)

	// Initial attempt plus three retries, backoff doubling 5s, 10s, 20s
	assert.Equal(t, 4, transport.callCount())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, *fx.sleeps)

	// The record survives for the next resend pass
	assert.Equal(t, 1, fx.store.PendingCount())
}

func TestSendRecoversMidRetry(t *testing.T) {
	transport := &fakeTransport{statuses: []int{503, 503, 202}}
	fx := newSenderFixture(t, transport)
	record := savedFatalRecord(t, fx.store, "eeee5555ffff6666")

	require.NoError(t, fx.sender.Send(record))

	assert.Equal(t, 3, transport.callCount())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *fx.sleeps)
	assert.Equal(t, 0, fx.store.PendingCount())
}

func TestSendNonSuccessStatusIsFailure(t *testing.T) {
	transport := &fakeTransport{statuses: []int{400}}
	fx := newSenderFixture(t, transport)
	record := savedFatalRecord(t, fx.store, "1234123412341234")

	err := fx.sender.Send(record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestProcessFatalSendsImmediately(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)
	record := savedFatalRecord(t, fx.store, "aaaa0000aaaa0000")

	require.NoError(t, fx.sender.Process(record))
	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
}

func TestProcessDuplicateIsDroppedFromPending(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	first := savedFatalRecord(t, fx.store, "bbbb0000bbbb0000")
	require.NoError(t, fx.sender.Process(first))

	duplicate := savedFatalRecord(t, fx.store, "bbbb0000bbbb0000")
	require.NoError(t, fx.sender.Process(duplicate))

	// Only the first occurrence shipped a payload
	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
	assert.Equal(t, int64(1), fx.stats.Snapshot().Deduplicated)
}

func TestProcessSampledOutIsDropped(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)
	fx.sender.gate.SetSamplingSource(func() float64 { return 0.0 })

	record := savedWorkerRecord(t, fx.store, "cccc0000cccc0000")
	require.NoError(t, fx.sender.Process(record))

	assert.Equal(t, 0, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
	assert.Equal(t, int64(1), fx.stats.Snapshot().SampledOut)
}

func TestBatchFlushAtCount(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	for i := 0; i < BatchFlushCount-1; i++ {
		record := savedWorkerRecord(t, fx.store, fmt.Sprintf("batchfp%09d", i))
		require.NoError(t, fx.sender.Process(record))
	}
	assert.Equal(t, 0, transport.callCount(), "batch must hold below the flush count")

	record := savedWorkerRecord(t, fx.store, "batchfp-trigger0")
	require.NoError(t, fx.sender.Process(record))

	assert.Equal(t, BatchFlushCount, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
}

func TestBatchOverflowDropsOldest(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	// Prefill the queue to its bound, then push one more
	var records []*core.CrashRecord
	for i := 0; i < MaxBatchSize; i++ {
		records = append(records, savedWorkerRecord(t, fx.store, fmt.Sprintf("overfp%010d", i)))
	}
	oldest := records[0]
	fx.sender.mu.Lock()
	fx.sender.batch = records
	fx.sender.mu.Unlock()

	extra := savedWorkerRecord(t, fx.store, "overfp-the-extra")
	fx.sender.addToBatch(extra)

	// The push flushed the queue; the dropped record never went on the wire
	require.Equal(t, MaxBatchSize, transport.callCount())
	for _, body := range transport.bodies {
		assert.NotContains(t, string(body), oldest.ID)
	}
}

func TestSendAllPendingThrottle(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	for i := 0; i < 3; i++ {
		savedFatalRecord(t, fx.store, fmt.Sprintf("throttle%08d", i))
	}

	require.NoError(t, fx.sender.SendAllPending(10))

	assert.Equal(t, 3, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
	// 10 per minute means a 6s gap between records, none after the last
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second}, *fx.sleeps)
}

func TestSendAllPendingReappliesGate(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	first := savedFatalRecord(t, fx.store, "dddd0000dddd0000")
	require.NoError(t, fx.sender.Process(first))
	require.Equal(t, 1, transport.callCount())

	// A second record with the same fingerprint waits in pending/
	savedFatalRecord(t, fx.store, "dddd0000dddd0000")
	require.NoError(t, fx.sender.SendAllPending(60))

	// The resend pass deduplicates instead of shipping a second payload
	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
}

func TestSendAllPendingRemovesUnreadableRecords(t *testing.T) {
	transport := &fakeTransport{}
	fx := newSenderFixture(t, transport)

	record := savedFatalRecord(t, fx.store, "ffff0000ffff0000")
	path := filepath.Join(fx.dataDir, "crashes", "pending", "crash_"+record.ID+".json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0600))

	require.NoError(t, fx.sender.SendAllPending(60))
	assert.Equal(t, 0, transport.callCount())
	assert.Equal(t, 0, fx.store.PendingCount())
}
