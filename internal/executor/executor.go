// Package executor runs the seven-step pre-flight veto gate over scored
// candidates and performs deletions, tracking repeat-deletion cooldown,
// reclaimed-byte accounting, and a circuit breaker over unexpected
// failures.
package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/platform"
	"github.com/focusd/sbh/internal/sbherrors"
)

// ProtectionRegistry answers whether a path has been explicitly protected
// out of band (e.g. via a CLI command), independent of the walker's
// protect-marker pruning.
type ProtectionRegistry interface {
	IsProtected(path string) bool
}

// CooldownTracker owns the repeat-deletion dampening records keyed by a
// canonicalized (directory, pattern) fingerprint.
type CooldownTracker interface {
	// Allow reports whether a deletion at fingerprint is currently
	// permitted, given the cooldown state.
	Allow(fingerprint string, now time.Time) bool
	// RecordDeletion updates the fingerprint's cooldown state after a
	// successful deletion.
	RecordDeletion(fingerprint string, now time.Time)
}

// Config bundles the executor's tunables.
type Config struct {
	MinFileAge        time.Duration
	MaxDeleteBatch    int
	CircuitHaltWindow time.Duration
}

// Result is the outcome of attempting one candidate.
type Result struct {
	Candidate model.Candidate
	Deleted   bool
	Veto      model.VetoReason
	Err       error
}

// Executor applies the veto gate and performs deletions.
type Executor struct {
	cfg        Config
	registry   ProtectionRegistry
	cooldown   CooldownTracker
	logger     *zap.Logger
	events     chan<- model.ActivityEvent

	mu                   sync.Mutex
	consecutiveFailures  int
	circuitOpenUntil     time.Time
	circuitTripped       bool // true from CircuitOpened until the matching CircuitClosed fires
}

// New constructs an Executor. events may be nil to discard activity events.
func New(cfg Config, registry ProtectionRegistry, cooldown CooldownTracker, logger *zap.Logger, events chan<- model.ActivityEvent) *Executor {
	return &Executor{cfg: cfg, registry: registry, cooldown: cooldown, logger: logger, events: events}
}

// circuitOpen reports whether the circuit breaker is currently tripped,
// emitting CircuitClosed on the first check that finds the cooldown
// window has passed since it tripped.
func (x *Executor) circuitOpen(now time.Time) bool {
	x.mu.Lock()
	open := now.Before(x.circuitOpenUntil)
	justClosed := !open && x.circuitTripped
	if justClosed {
		x.circuitTripped = false
	}
	x.mu.Unlock()

	if justClosed {
		x.emit(model.EventCircuitClosed, model.Candidate{}, nil)
	}
	return open
}

// ExecuteBatch applies the veto gate to each candidate in order,
// short-circuiting the whole batch if the circuit breaker trips mid-batch.
// batchCap overrides the configured MaxDeleteBatch for this call: 0 uses
// the configured default, -1 is unbounded, and any positive value caps the
// batch at exactly that size (spec.md §4.3's graduated SoftScan/
// AggressiveScan/Emergency response).
func (x *Executor) ExecuteBatch(ctx context.Context, candidates []model.Candidate, fingerprintOf func(model.Candidate) string, now time.Time, batchCap int) []Result {
	limit := x.cfg.MaxDeleteBatch
	if batchCap != 0 {
		limit = batchCap
	}

	batch := candidates
	if limit > 0 && len(batch) > limit {
		batch = batch[:limit]
	}

	results := make([]Result, 0, len(batch))
	for _, c := range batch {
		if ctx.Err() != nil {
			break
		}
		if x.circuitOpen(now) {
			results = append(results, Result{Candidate: c, Veto: model.VetoNone, Err: sbherrors.New(sbherrors.KindCircuitOpen, "executor circuit open")})
			continue
		}

		r := x.attempt(c, fingerprintOf(c), now)
		results = append(results, r)
	}
	return results
}

// attempt runs the full pre-flight gate for one candidate in spec order,
// short-circuiting on first failure, then performs the deletion.
func (x *Executor) attempt(c model.Candidate, fingerprint string, now time.Time) Result {
	if veto, ok := x.preflight(c, fingerprint, now); !ok {
		x.emit(model.EventDeleteVetoed, c, map[string]any{"reason": string(veto)})
		return Result{Candidate: c, Veto: veto}
	}

	x.emit(model.EventDeleteAttempted, c, nil)

	if err := os.Remove(c.Path); err != nil {
		x.recordFailure(now, err)
		x.emit(model.EventError, c, map[string]any{"error": err.Error()})
		return Result{Candidate: c, Err: sbherrors.Wrap(sbherrors.KindDeleteFailed, "delete failed", err)}
	}

	x.recordSuccess()
	x.cooldown.RecordDeletion(fingerprint, now)
	x.emit(model.EventDeleteSucceeded, c, map[string]any{"bytes": c.Size})
	return Result{Candidate: c, Deleted: true}
}

// preflight runs the seven-step veto gate, in order, returning the first
// veto reason hit, or VetoNone with ok=true if every step clears.
func (x *Executor) preflight(c model.Candidate, fingerprint string, now time.Time) (model.VetoReason, bool) {
	// 1. File still exists and is a regular file (not a symlink).
	info, err := os.Lstat(c.Path)
	if err != nil {
		return model.VetoNotRegularFile, false
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return model.VetoNotRegularFile, false
	}

	// 2. Parent directory is writable by the effective user.
	if !parentWritable(c.Path) {
		return model.VetoParentUnwritable, false
	}

	// 3. No .git/ or VCS directory anywhere in the ancestor chain.
	if underVCS(c.Path) {
		return model.VetoUnderVCS, false
	}

	// 4. File age >= min_file_age_minutes.
	if now.Sub(info.ModTime()) < x.cfg.MinFileAge {
		return model.VetoTooYoung, false
	}

	// 5. File not currently open by any process (best-effort).
	if platform.IsLikelyOpen(c.Path, info.ModTime(), now) {
		return model.VetoOpenFile, false
	}

	// 6. Path not in protection registry.
	if x.registry != nil && x.registry.IsProtected(c.Path) {
		return model.VetoProtectedGlob, false
	}

	// 7. Repeat-deletion dampening cooldown satisfied.
	if x.cooldown != nil && !x.cooldown.Allow(fingerprint, now) {
		return model.VetoCooldown, false
	}

	return model.VetoNone, true
}

var vcsDirNames = map[string]bool{".git": true, ".hg": true, ".svn": true}

func underVCS(path string) bool {
	dir := filepath.Dir(path)
	for {
		base := filepath.Base(dir)
		if vcsDirNames[base] {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

func parentWritable(path string) bool {
	parent := filepath.Dir(path)
	return unix_access_writable(parent)
}

// recordFailure tracks consecutive unexpected failures and trips the
// circuit breaker after three, emitting CircuitOpened.
func (x *Executor) recordFailure(now time.Time, err error) {
	if !isUnexpectedFailure(err) {
		return
	}

	x.mu.Lock()
	x.consecutiveFailures++
	tripped := x.consecutiveFailures >= 3
	if tripped {
		x.circuitOpenUntil = now.Add(x.cfg.CircuitHaltWindow)
		x.consecutiveFailures = 0
		x.circuitTripped = true
	}
	x.mu.Unlock()

	if tripped {
		x.logger.Warn("executor circuit breaker tripped", zap.Duration("halt", x.cfg.CircuitHaltWindow))
		x.emit(model.EventCircuitOpened, model.Candidate{}, map[string]any{"halt_seconds": x.cfg.CircuitHaltWindow.Seconds()})
	}
}

func (x *Executor) recordSuccess() {
	x.mu.Lock()
	x.consecutiveFailures = 0
	x.mu.Unlock()
}

// isUnexpectedFailure distinguishes a genuine permission/IO failure from a
// benign concurrent-delete race (the file vanished between preflight and
// remove), which should not count toward the circuit breaker.
func isUnexpectedFailure(err error) bool {
	return !errors.Is(err, os.ErrNotExist)
}

func (x *Executor) emit(kind model.EventKind, c model.Candidate, fields map[string]any) {
	if x.events == nil {
		return
	}
	evt := model.ActivityEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Path:      c.Path,
		Bytes:     c.Size,
		Fields:    fields,
	}
	select {
	case x.events <- evt:
	default:
		// Non-blocking send per spec.md §4.9. An event dropped here because
		// this channel is full is not added to any dropped-event counter.
	}
}
