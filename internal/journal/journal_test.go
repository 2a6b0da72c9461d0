package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
)

func TestEmitWritesToJSONL(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	j.Emit(model.ActivityEvent{Kind: model.EventScanStarted, Path: "/tmp/foo"})

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
		return err == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitAssignsMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Emit(model.ActivityEvent{Kind: model.EventHeartbeat})
	}

	require.Eventually(t, func() bool {
		f, err := os.Open(filepath.Join(dir, "events.jsonl"))
		if err != nil {
			return false
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		count := 0
		var prev uint64
		for scanner.Scan() {
			var rec struct {
				Seq uint64 `json:"seq"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.Seq <= prev {
				return false
			}
			prev = rec.Seq
			count++
		}
		return count == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOverflowDropsAndCounts(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	// Holding the sink lock stalls the worker after it takes at most one
	// event, so at most QueueCapacity+1 of the emits can be accepted.
	j.mu.Lock()
	for i := 0; i < QueueCapacity*2; i++ {
		j.Emit(model.ActivityEvent{Kind: model.EventHeartbeat})
	}

	assert.GreaterOrEqual(t, j.DroppedEvents(), uint64(QueueCapacity-1))
	j.mu.Unlock()
}
