/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: looper.go
Description: Serialized task loop for Akaylee CrashKit. Drains posted tasks
on a single dedicated goroutine so it behaves like a UI-equivalent thread:
one task at a time, in order, and a long-running task stalls everything
behind it. Hosts without a platform loop hand this to the orchestrator.
*/

package reporter

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// looperQueueSize bounds posted-but-undrained tasks
const looperQueueSize = 256

// GoroutineLooper is a single-goroutine serialized task loop
type GoroutineLooper struct {
	name  string
	tasks chan func()
	id    atomic.Int64

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
}

// NewGoroutineLooper starts the loop goroutine
func NewGoroutineLooper(name string) *GoroutineLooper {
	if name == "" {
		name = "main"
	}
	l := &GoroutineLooper{
		name:  name,
		tasks: make(chan func(), looperQueueSize),
		stop:  make(chan struct{}),
	}
	ready := make(chan struct{})
	go l.run(ready)
	<-ready
	return l
}

func (l *GoroutineLooper) run(ready chan<- struct{}) {
	l.id.Store(currentGoroutineID())
	close(ready)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.stop:
			return
		}
	}
}

// Post schedules fn on the loop without blocking the caller. Tasks posted
// past the queue bound are dropped; a loop that far behind is already the
// story the watchdog will tell.
func (l *GoroutineLooper) Post(fn func()) {
	select {
	case l.tasks <- fn:
	default:
	}
}

// ThreadName returns the loop's name
func (l *GoroutineLooper) ThreadName() string {
	return l.name
}

// GoroutineID returns the loop goroutine's runtime ID
func (l *GoroutineLooper) GoroutineID() int64 {
	return l.id.Load()
}

// StackTrace renders the current goroutine dump filtered to this package's
// loop goroutine, or "" when it cannot be identified
func (l *GoroutineLooper) StackTrace() string {
	buf := make([]byte, 256<<10)
	n := runtime.Stack(buf, true)
	for _, block := range strings.Split(string(buf[:n]), "\n\n") {
		if strings.Contains(block, "GoroutineLooper).run") {
			return strings.TrimSpace(block)
		}
	}
	return ""
}

// Stop terminates the loop goroutine
func (l *GoroutineLooper) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stop)
	}
}
