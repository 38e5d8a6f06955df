/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Structured logging for Akaylee CrashKit. Wraps logrus with an
async, never-blocking entry queue so the crash-producing path cannot stall on
log I/O: a full queue drops the entry and counts it instead of waiting. File
output rotates by size on the drain goroutine and old files are pruned down
to the retention bound. Close flushes whatever the queue still holds.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	logFilePrefix      = "crashkit_"
	defaultMaxFiles    = 10
	defaultMaxFileSize = 100 << 20

	queueSize = 1024
	// rotation is size-based; checking the file on every entry would be
	// a stat per log line, so the drain loop checks every Nth entry
	rotateCheckEvery = 64
)

// Options configures the reporter's logger. The zero value logs text to
// stdout only.
type Options struct {
	Level       string // debug, info, warn, error; anything else means info
	JSON        bool   // JSON lines instead of the console format
	Colors      bool   // ANSI colors on the console format
	Dir         string // when set, output is mirrored into rotated files
	MaxFiles    int    // rotated files kept; 0 means the default
	MaxFileSize int64  // rotation threshold in bytes; 0 means the default
}

type entry struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

// Logger is the async structured logger shared by every component
type Logger struct {
	opts  Options
	core  *logrus.Logger
	file  *os.File
	start time.Time

	queue   chan entry
	done    chan struct{}
	drained chan struct{}
	dropped atomic.Int64
}

// New builds a logger from the options and starts its drain goroutine
func New(opts Options) (*Logger, error) {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = defaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	l := &Logger{
		opts:    opts,
		core:    logrus.New(),
		start:   time.Now(),
		queue:   make(chan entry, queueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	l.core.SetOutput(os.Stdout)
	l.core.SetLevel(parseLevel(opts.Level))
	if opts.JSON {
		l.core.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.core.SetFormatter(&ConsoleFormatter{Colors: opts.Colors})
	}

	if opts.Dir != "" {
		if err := l.openFile(); err != nil {
			return nil, err
		}
	}

	go l.drain()
	return l, nil
}

// parseLevel maps a level string onto logrus, defaulting to info
func parseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// openFile starts a fresh timestamped log file and points output at it
func (l *Logger) openFile() error {
	if err := os.MkdirAll(l.opts.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Sub-second precision so a same-second rotation gets a fresh file
	name := logFilePrefix + time.Now().Format("2006-01-02_15-04-05.000000000") + ".log"
	file, err := os.OpenFile(filepath.Join(l.opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.core.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// drain writes queued entries until Close, then flushes what is left
func (l *Logger) drain() {
	defer close(l.drained)

	var written int
	write := func(e entry) {
		l.core.WithFields(e.fields).Log(e.level, e.msg)
		written++
		if l.file != nil && written%rotateCheckEvery == 0 {
			l.rotate()
		}
	}

	for {
		select {
		case e := <-l.queue:
			write(e)
		case <-l.done:
			for {
				select {
				case e := <-l.queue:
					write(e)
				default:
					return
				}
			}
		}
	}
}

// rotate swaps to a new file when the current one crossed the size bound,
// pruning old files past the retention count. Called only from drain.
func (l *Logger) rotate() {
	stat, err := l.file.Stat()
	if err != nil || stat.Size() < l.opts.MaxFileSize {
		return
	}
	l.file.Close()
	if err := l.openFile(); err != nil {
		// Fall back to console-only rather than losing the stream
		l.file = nil
		l.core.SetOutput(os.Stdout)
		return
	}
	l.prune()
}

// prune removes the oldest rotated files beyond MaxFiles
func (l *Logger) prune() {
	files, err := filepath.Glob(filepath.Join(l.opts.Dir, logFilePrefix+"*.log"))
	if err != nil || len(files) <= l.opts.MaxFiles {
		return
	}
	sort.Slice(files, func(i, j int) bool {
		si, _ := os.Stat(files[i])
		sj, _ := os.Stat(files[j])
		if si == nil || sj == nil {
			return files[i] < files[j]
		}
		return si.ModTime().Before(sj.ModTime())
	})
	for _, f := range files[:len(files)-l.opts.MaxFiles] {
		os.Remove(f)
	}
}

// enqueue never blocks: a full queue drops the entry and counts the drop
func (l *Logger) enqueue(level logrus.Level, msg string, fields map[string]interface{}) {
	select {
	case l.queue <- entry{level: level, msg: msg, fields: fields}:
	default:
		l.dropped.Add(1)
	}
}

// Debug logs a debug message without blocking
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.enqueue(logrus.DebugLevel, msg, fields)
}

// Info logs an info message without blocking
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.enqueue(logrus.InfoLevel, msg, fields)
}

// Warning logs a warning message without blocking
func (l *Logger) Warning(msg string, fields map[string]interface{}) {
	l.enqueue(logrus.WarnLevel, msg, fields)
}

// Error logs an error message without blocking
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.enqueue(logrus.ErrorLevel, msg, fields)
}

// LogStats logs a reporter counters snapshot
func (l *Logger) LogStats(captured, sent, deduplicated, sampledOut int64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["subsystem"] = "stats"
	fields["captured"] = captured
	fields["sent"] = sent
	fields["deduplicated"] = deduplicated
	fields["sampled_out"] = sampledOut
	fields["uptime"] = time.Since(l.start)
	l.enqueue(logrus.InfoLevel, "Statistics update", fields)
}

// Dropped returns how many entries the full queue discarded
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// GetLogger exposes the underlying logrus logger for components that take
// one directly
func (l *Logger) GetLogger() *logrus.Logger {
	return l.core
}

// Close flushes the queue, stops the drain goroutine and closes the file
func (l *Logger) Close() error {
	close(l.done)
	<-l.drained
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
