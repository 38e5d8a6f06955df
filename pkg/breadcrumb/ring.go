/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: ring.go
Description: Breadcrumb ring for Akaylee CrashKit. A concurrent FIFO of the
most recent user-observable events. Appenders never block; when the ring is
full the oldest entry is evicted atomically with insertion. Reads produce a
consistent snapshot in insertion order.
*/

package breadcrumb

import (
	"sync"
	"time"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// MaxBreadcrumbs bounds the ring; oldest entries are evicted on overflow
const MaxBreadcrumbs = 100

// Ring is a bounded concurrent FIFO of breadcrumbs
type Ring struct {
	mu    sync.Mutex
	buf   [MaxBreadcrumbs]core.Breadcrumb
	head  int // index of the oldest entry
	count int
}

// NewRing creates an empty breadcrumb ring
func NewRing() *Ring {
	return &Ring{}
}

// Add appends a breadcrumb, evicting the oldest entry when full.
// Never blocks beyond the short critical section.
func (r *Ring) Add(category, level, message string, data map[string]string) {
	crumb := core.Breadcrumb{
		Timestamp: time.Now(),
		Category:  category,
		Level:     level,
		Message:   message,
		Data:      data,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < MaxBreadcrumbs {
		r.buf[(r.head+r.count)%MaxBreadcrumbs] = crumb
		r.count++
		return
	}
	// Full: overwrite the oldest slot and advance the head
	r.buf[r.head] = crumb
	r.head = (r.head + 1) % MaxBreadcrumbs
}

// Snapshot returns a copy of the ring contents in insertion order
func (r *Ring) Snapshot() []core.Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Breadcrumb, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%MaxBreadcrumbs]
	}
	return out
}

// Len returns the number of retained breadcrumbs
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear removes all retained breadcrumbs
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
