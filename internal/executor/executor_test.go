package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
)

type memRegistry struct{ protected map[string]bool }

func (r *memRegistry) IsProtected(path string) bool { return r.protected[path] }

type memCooldown struct{ blocked map[string]bool }

func (c *memCooldown) Allow(fingerprint string, now time.Time) bool { return !c.blocked[fingerprint] }
func (c *memCooldown) RecordDeletion(fingerprint string, now time.Time) {}

func testExecutor() *Executor {
	return New(Config{MinFileAge: 0, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}},
		&memCooldown{blocked: map[string]bool{}},
		zap.NewNop(), nil)
}

func touchOldFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestDeleteSucceedsForOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "victim.tmp")
	touchOldFile(t, path)

	x := testExecutor()
	results := x.ExecuteBatch(context.Background(), []model.Candidate{{Path: path, Size: 1}}, func(c model.Candidate) string { return c.Path }, time.Now(), 0)

	require.Len(t, results, 1)
	assert.True(t, results[0].Deleted)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestVetoTooYoung(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.tmp")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	x := New(Config{MinFileAge: time.Hour, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), []model.Candidate{{Path: path, Size: 1}}, func(c model.Candidate) string { return c.Path }, time.Now(), 0)
	require.Len(t, results, 1)
	assert.False(t, results[0].Deleted)
	assert.Equal(t, model.VetoTooYoung, results[0].Veto)

	_, err := os.Stat(path)
	assert.NoError(t, err, "vetoed file must not be removed")
}

func TestVetoMissingFile(t *testing.T) {
	x := testExecutor()
	results := x.ExecuteBatch(context.Background(), []model.Candidate{{Path: "/nonexistent/does/not/exist"}}, func(c model.Candidate) string { return c.Path }, time.Now(), 0)
	require.Len(t, results, 1)
	assert.Equal(t, model.VetoNotRegularFile, results[0].Veto)
}

func TestVetoProtectedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protected.tmp")
	touchOldFile(t, path)

	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{path: true}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), []model.Candidate{{Path: path, Size: 1}}, func(c model.Candidate) string { return c.Path }, time.Now(), 0)
	require.Len(t, results, 1)
	assert.Equal(t, model.VetoProtectedGlob, results[0].Veto)
}

func TestVetoCooldownBlocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repeat.tmp")
	touchOldFile(t, path)

	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{"fp": true}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), []model.Candidate{{Path: path, Size: 1}}, func(c model.Candidate) string { return "fp" }, time.Now(), 0)
	require.Len(t, results, 1)
	assert.Equal(t, model.VetoCooldown, results[0].Veto)
}

func TestBatchCappedAtMaxDeleteBatch(t *testing.T) {
	dir := t.TempDir()
	var candidates []model.Candidate
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "f"+string(rune('a'+i)))
		touchOldFile(t, p)
		candidates = append(candidates, model.Candidate{Path: p, Size: 1})
	}

	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 2, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), candidates, func(c model.Candidate) string { return c.Path }, time.Now(), 0)
	assert.Len(t, results, 2)
}

func TestBatchCapOverrideUnboundedWhenNegativeOne(t *testing.T) {
	dir := t.TempDir()
	var candidates []model.Candidate
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "g"+string(rune('a'+i)))
		touchOldFile(t, p)
		candidates = append(candidates, model.Candidate{Path: p, Size: 1})
	}

	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 2, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), candidates, func(c model.Candidate) string { return c.Path }, time.Now(), -1)
	assert.Len(t, results, 5, "a -1 batchCap must override the configured cap as unbounded")
}

func TestBatchCapOverrideExplicitSize(t *testing.T) {
	dir := t.TempDir()
	var candidates []model.Candidate
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "h"+string(rune('a'+i)))
		touchOldFile(t, p)
		candidates = append(candidates, model.Candidate{Path: p, Size: 1})
	}

	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), nil)

	results := x.ExecuteBatch(context.Background(), candidates, func(c model.Candidate) string { return c.Path }, time.Now(), 3)
	assert.Len(t, results, 3, "an explicit batchCap must override the configured default")
}

func TestCircuitBreakerTripsAfterThreeFailures(t *testing.T) {
	x := testExecutor()
	now := time.Now()

	missing := []model.Candidate{
		{Path: "/no/such/path/1"},
	}
	// Missing files veto at step 1 (VetoNotRegularFile), which never counts
	// as an executor failure — use a parent-unwritable style failure path
	// instead by forcing consecutive circuit-breaker increments directly.
	_ = missing

	x.recordFailure(now, assertableErr{})
	x.recordFailure(now, assertableErr{})
	x.recordFailure(now, assertableErr{})

	assert.True(t, x.circuitOpen(now))
}

func TestCircuitClosedEmittedAfterCooldown(t *testing.T) {
	events := make(chan model.ActivityEvent, 16)
	x := New(Config{MinFileAge: 0, MaxDeleteBatch: 20, CircuitHaltWindow: 30 * time.Second},
		&memRegistry{protected: map[string]bool{}}, &memCooldown{blocked: map[string]bool{}}, zap.NewNop(), events)
	now := time.Now()

	x.recordFailure(now, assertableErr{})
	x.recordFailure(now, assertableErr{})
	x.recordFailure(now, assertableErr{})
	require.True(t, x.circuitOpen(now))
	require.True(t, x.circuitOpen(now.Add(29*time.Second)), "must still be open before the halt window elapses")

	after := now.Add(31 * time.Second)
	require.False(t, x.circuitOpen(after))

	var sawClosed bool
	for {
		select {
		case evt := <-events:
			if evt.Kind == model.EventCircuitClosed {
				sawClosed = true
			}
		default:
			goto done
		}
	}
done:
	assert.True(t, sawClosed, "expected a CircuitClosed event once the circuit reopened for business")
}

type assertableErr struct{}

func (assertableErr) Error() string { return "simulated unexpected failure" }
