package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetMountAndRetrieve(t *testing.T) {
	m := NewSharedModel()
	m.SetMount(Mount{ID: "m1", TotalBytes: 100, FreeBytes: 40})

	got, ok := m.Mount("m1")
	assert.True(t, ok)
	assert.Equal(t, uint64(40), got.FreeBytes)

	_, ok = m.Mount("missing")
	assert.False(t, ok)
}

func TestCountersAccumulate(t *testing.T) {
	m := NewSharedModel()
	m.AddScans(2)
	m.AddDeletions(1)
	m.AddBytesFreed(1024)
	m.AddErrors(1)
	m.AddDropped(3)
	m.AddSqliteFailure(1)

	c := m.Counters()
	assert.Equal(t, uint64(2), c.Scans)
	assert.Equal(t, uint64(1), c.Deletions)
	assert.Equal(t, uint64(1024), c.BytesFreed)
	assert.Equal(t, uint64(1), c.Errors)
	assert.Equal(t, uint64(3), c.DroppedEvents)
	assert.Equal(t, uint64(1), c.SqliteFailures)
}

func TestMountsSnapshotIsACopy(t *testing.T) {
	m := NewSharedModel()
	m.SetMount(Mount{ID: "m1"})

	snap := m.Mounts()
	snap["m1"] = Mount{ID: "mutated"}

	got, _ := m.Mount("m1")
	assert.Equal(t, "m1", got.ID)
}

func TestHeartbeatRecordsPerWorker(t *testing.T) {
	m := NewSharedModel()
	now := time.Now()
	m.Heartbeat("monitor", now)

	hb := m.Heartbeats()
	assert.WithinDuration(t, now, hb["monitor"], time.Millisecond)
}

func TestFreePctHandlesZeroTotal(t *testing.T) {
	m := Mount{TotalBytes: 0, FreeBytes: 10}
	assert.Equal(t, 0.0, m.FreePct())
}

func TestPressureLevelString(t *testing.T) {
	assert.Equal(t, "Green", Green.String())
	assert.Equal(t, "Critical", Critical.String())
}
