/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: ring_test.go
Description: Tests for the breadcrumb ring. Covers insertion order, eviction
of the oldest entries at the bound, snapshot isolation from later writes,
clear, and concurrent appenders staying within the bound.
*/

package breadcrumb

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsInsertionOrder(t *testing.T) {
	ring := NewRing()

	ring.Add("ui", "info", "screen opened", map[string]string{"screen": "home"})
	ring.Add("network", "warning", "request slow", nil)
	ring.Add("ui", "info", "button tapped", nil)

	crumbs := ring.Snapshot()
	require.Len(t, crumbs, 3)
	assert.Equal(t, "screen opened", crumbs[0].Message)
	assert.Equal(t, "request slow", crumbs[1].Message)
	assert.Equal(t, "button tapped", crumbs[2].Message)
	assert.Equal(t, "home", crumbs[0].Data["screen"])
	assert.False(t, crumbs[0].Timestamp.IsZero())
}

func TestRingEvictsOldestAtBound(t *testing.T) {
	ring := NewRing()

	for i := 0; i < MaxBreadcrumbs+25; i++ {
		ring.Add("test", "info", fmt.Sprintf("event-%d", i), nil)
	}

	crumbs := ring.Snapshot()
	require.Len(t, crumbs, MaxBreadcrumbs)
	assert.Equal(t, "event-25", crumbs[0].Message)
	assert.Equal(t, fmt.Sprintf("event-%d", MaxBreadcrumbs+24), crumbs[MaxBreadcrumbs-1].Message)
}

func TestRingSnapshotIsIsolated(t *testing.T) {
	ring := NewRing()
	ring.Add("test", "info", "first", nil)

	crumbs := ring.Snapshot()
	ring.Add("test", "info", "second", nil)

	assert.Len(t, crumbs, 1)
	assert.Equal(t, 2, ring.Len())
}

func TestRingClear(t *testing.T) {
	ring := NewRing()
	ring.Add("test", "info", "x", nil)
	ring.Add("test", "info", "y", nil)

	ring.Clear()
	assert.Equal(t, 0, ring.Len())
	assert.Empty(t, ring.Snapshot())

	ring.Add("test", "info", "after clear", nil)
	crumbs := ring.Snapshot()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "after clear", crumbs[0].Message)
}

func TestRingConcurrentAppenders(t *testing.T) {
	ring := NewRing()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ring.Add("worker", "info", fmt.Sprintf("w%d-%d", w, i), nil)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, MaxBreadcrumbs, ring.Len())
	assert.Len(t, ring.Snapshot(), MaxBreadcrumbs)
}
