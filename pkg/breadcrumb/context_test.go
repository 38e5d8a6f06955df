/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: context_test.go
Description: Tests for the custom data store and operation tracker. Covers
the key bound with update-through for existing keys, environment label
handling, snapshot copying, and the operation lifecycle of begin, succeed
and fail.
*/

package breadcrumb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomDataBoundsNewKeys(t *testing.T) {
	data := NewCustomData()

	for i := 0; i < MaxCustomKeys; i++ {
		data.Set(fmt.Sprintf("key_%02d", i), "v")
	}
	data.Set("one_too_many", "dropped")

	snapshot := data.Snapshot()
	assert.Len(t, snapshot, MaxCustomKeys)
	assert.NotContains(t, snapshot, "one_too_many")

	// Existing keys still update at the bound
	data.Set("key_00", "updated")
	assert.Equal(t, "updated", data.Snapshot()["key_00"])
}

func TestCustomDataRemoveFreesASlot(t *testing.T) {
	data := NewCustomData()
	for i := 0; i < MaxCustomKeys; i++ {
		data.Set(fmt.Sprintf("key_%02d", i), "v")
	}

	data.Remove("key_00")
	data.Set("replacement", "v")
	assert.Contains(t, data.Snapshot(), "replacement")
}

func TestCustomDataSnapshotIsACopy(t *testing.T) {
	data := NewCustomData()
	data.Set("a", "1")

	snapshot := data.Snapshot()
	snapshot["a"] = "mutated"
	assert.Equal(t, "1", data.Snapshot()["a"])
}

func TestCustomDataEnvironment(t *testing.T) {
	data := NewCustomData()
	assert.Empty(t, data.Environment())

	data.SetEnvironment("staging")
	assert.Equal(t, "staging", data.Environment())

	data.Clear()
	assert.Empty(t, data.Environment())
	assert.Empty(t, data.Snapshot())
}

func TestOperationTrackerLifecycle(t *testing.T) {
	tracker := NewOperationTracker()

	tracker.Begin("load_profile")
	current, _, _, _ := tracker.Snapshot()
	assert.Equal(t, "load_profile", current)

	tracker.Succeed("load_profile")
	current, lastOK, _, _ := tracker.Snapshot()
	assert.Empty(t, current)
	assert.Equal(t, "load_profile", lastOK)

	tracker.Begin("sync_cart")
	tracker.Fail("sync_cart", "http 500")
	current, lastOK, lastFailed, reason := tracker.Snapshot()
	assert.Empty(t, current)
	assert.Equal(t, "load_profile", lastOK)
	assert.Equal(t, "sync_cart", lastFailed)
	assert.Equal(t, "http 500", reason)
}

func TestOperationTrackerFinishingAnotherOperationKeepsCurrent(t *testing.T) {
	tracker := NewOperationTracker()

	tracker.Begin("checkout")
	tracker.Succeed("background_refresh")

	current, lastOK, _, _ := tracker.Snapshot()
	assert.Equal(t, "checkout", current)
	assert.Equal(t, "background_refresh", lastOK)
}

func TestOperationTrackerClear(t *testing.T) {
	tracker := NewOperationTracker()
	tracker.Begin("a")
	tracker.Fail("a", "oops")

	tracker.Clear()
	current, lastOK, lastFailed, reason := tracker.Snapshot()
	assert.Empty(t, current)
	assert.Empty(t, lastOK)
	assert.Empty(t, lastFailed)
	assert.Empty(t, reason)
}
