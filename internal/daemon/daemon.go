// Package daemon wires every SBH worker into the supervised process: the
// pressure monitor, the scan scheduler and walker, the scoring/executor
// pipeline, ballast management, the dual-sink journal, and the state
// publisher. It is adapted from the teacher's Watcher/Guardian pair (two
// mutually-supervising processes, each running its own ticker loop) into a
// single process where one supervisor watches many goroutines instead of
// two daemons watching each other.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/ballast"
	"github.com/focusd/sbh/internal/config"
	"github.com/focusd/sbh/internal/control"
	"github.com/focusd/sbh/internal/executor"
	"github.com/focusd/sbh/internal/forecaster"
	"github.com/focusd/sbh/internal/journal"
	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/platform"
	"github.com/focusd/sbh/internal/publisher"
	"github.com/focusd/sbh/internal/scheduler"
	"github.com/focusd/sbh/internal/scoring"
	"github.com/focusd/sbh/internal/supervisor"
	"github.com/focusd/sbh/internal/walker"
)

// Version is overridden at link time via -ldflags.
var Version = "dev"

// memRegistry is the in-process protection registry consulted by the
// executor's pre-flight gate: paths added with Protect are kept here,
// independent of the walker's own marker-file pruning.
type memRegistry struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

func newMemRegistry() *memRegistry { return &memRegistry{paths: make(map[string]struct{})} }

func (r *memRegistry) IsProtected(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.paths[path]
	return ok
}

func (r *memRegistry) Protect(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

// memCooldown tracks repeat-deletion fingerprints with an exponential
// backoff between RepeatCooldownBaseSecs and RepeatCooldownCapSecs,
// resetting after RepeatCooldownQuietSecs of inactivity (spec.md §4.8).
type memCooldown struct {
	mu      sync.Mutex
	records map[string]model.RepeatDeletionRecord
	base    time.Duration
	ceil    time.Duration
	quiet   time.Duration
}

func newMemCooldown(base, ceil, quiet time.Duration) *memCooldown {
	return &memCooldown{records: make(map[string]model.RepeatDeletionRecord), base: base, ceil: ceil, quiet: quiet}
}

func (c *memCooldown) Allow(fingerprint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[fingerprint]
	if !ok {
		return true
	}
	if now.Sub(rec.LastDeletedAt) > c.quiet {
		delete(c.records, fingerprint)
		return true
	}
	return now.Sub(rec.LastDeletedAt) >= time.Duration(rec.CooldownSecs)*time.Second
}

func (c *memCooldown) RecordDeletion(fingerprint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[fingerprint]
	if now.Sub(rec.LastDeletedAt) > c.quiet {
		rec.ConsecutiveCount = 0
		rec.CooldownSecs = int(c.base.Seconds())
	} else {
		rec.ConsecutiveCount++
		next := time.Duration(rec.CooldownSecs) * time.Second * 2
		if rec.CooldownSecs == 0 {
			next = c.base
		}
		if next > c.ceil {
			next = c.ceil
		}
		rec.CooldownSecs = int(next.Seconds())
	}
	rec.LastDeletedAt = now
	rec.Fingerprint = fingerprint
	c.records[fingerprint] = rec
}

// mountPipeline bundles the stateful, per-mount components: the PID loop
// and ballast pool are mount-scoped, everything else (forecaster, scoring,
// executor, scheduler) is process-wide.
type mountPipeline struct {
	loop    *control.Loop
	ballast *ballast.Pool
}

// Daemon owns every long-running worker and the shared model they read and
// write through.
type Daemon struct {
	cfgPtr atomic.Pointer[config.Config]
	logger *zap.Logger

	probe      platform.Probe
	forecaster *forecaster.Manager
	scheduler  *scheduler.Scheduler
	scoring    *scoring.Engine
	executor   *executor.Executor
	journal    *journal.Journal
	publisher  *publisher.Publisher
	supervisor *supervisor.Supervisor

	model *model.SharedModel

	mu        sync.Mutex
	pipelines map[string]*mountPipeline
	histories map[string]scheduler.RootHistory

	// pendingBatchSize is the most permissive scan batch-size override
	// requested by a control decision since the last scan tick consumed it:
	// 0 means no override (use cfg.Scanner.MaxDeleteBatch), -1 means
	// unbounded (Emergency), and a positive value is an explicit cap
	// (SoftScan=5, AggressiveScan=20), per spec.md §4.3.
	pendingBatchSize atomic.Int32

	events  chan model.ActivityEvent
	forceCh chan struct{}
	startedAt time.Time
}

// New constructs a Daemon from a validated config. It opens the journal and
// publisher eagerly (both are cheap, local filesystem operations) but does
// not start any worker goroutines; call Run for that.
func New(cfg config.Config, logger *zap.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	j, err := journal.Open(cfg.Paths.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	calibrator := scoring.NewCalibrator(cfg.Scoring.CalibrationFloor)
	scoringEngine := scoring.NewEngine(scoring.Config{
		Weights: scoring.Weights{
			Location:  cfg.Scoring.Weights.Location,
			Pattern:   cfg.Scoring.Weights.Pattern,
			Age:       cfg.Scoring.Weights.Age,
			Size:      cfg.Scoring.Weights.Size,
			Structure: cfg.Scoring.Weights.Structure,
		},
		Costs: scoring.Costs{
			FalsePositive: cfg.Scoring.FalsePositiveCost,
			FalseNegative: cfg.Scoring.FalseNegativeCost,
		},
		CalibrationFloor:   cfg.Scoring.CalibrationFloor,
		CharacteristicSize: float64(cfg.Scoring.CharacteristicSizeBytes),
	}, calibrator)

	events := make(chan model.ActivityEvent, 256)

	reg := newMemRegistry()
	cooldown := newMemCooldown(
		time.Duration(cfg.Scanner.RepeatCooldownBaseSecs)*time.Second,
		time.Duration(cfg.Scanner.RepeatCooldownCapSecs)*time.Second,
		time.Duration(cfg.Scanner.RepeatCooldownQuietSecs)*time.Second,
	)

	exec := executor.New(executor.Config{
		MinFileAge:        time.Duration(cfg.Scanner.MinFileAgeMinutes) * time.Minute,
		MaxDeleteBatch:    cfg.Scanner.MaxDeleteBatch,
		CircuitHaltWindow: 30 * time.Second,
	}, reg, cooldown, logger, events)

	sched := scheduler.New(scheduler.Config{
		Budget:           cfg.Scheduler.ScanBudgetPerInterval,
		ExplorationQuota: cfg.Scheduler.ExplorationQuota,
		Weights: scheduler.Weights{
			IOCostWeight:      cfg.Scheduler.IOCostWeight,
			FPRiskWeight:      cfg.Scheduler.FPRiskWeight,
			ExplorationWeight: cfg.Scheduler.ExplorationWeight,
		},
		FallbackAfterTicks: cfg.Scheduler.FallbackAfterTicks,
		RNGSeed:            cfg.Scheduler.RNGSeed,
	})

	d := &Daemon{
		logger:     logger,
		probe:      platform.NewProbe(),
		forecaster: forecaster.NewManager(forecaster.Horizons{
			CriticalSeconds: cfg.Pressure.Prediction.CriticalSeconds,
			ImminentSeconds: cfg.Pressure.Prediction.ImminentSeconds,
			ActionSeconds:   cfg.Pressure.Prediction.ActionSeconds,
			WarningSeconds:  cfg.Pressure.Prediction.WarningSeconds,
			MinConfidence:   cfg.Pressure.Prediction.MinConfidence,
		}, logger),
		scheduler: sched,
		scoring:   scoringEngine,
		executor:  exec,
		journal:   j,
		publisher: publisher.New(cfg.Paths.DataDir, logger),
		model:     model.NewSharedModel(),
		pipelines: make(map[string]*mountPipeline),
		histories: make(map[string]scheduler.RootHistory),
		events:    events,
		forceCh:   make(chan struct{}, 1),
		startedAt: time.Now(),
	}
	d.cfgPtr.Store(&cfg)
	d.supervisor = supervisor.New(logger, d.escalate)

	for i, root := range cfg.Scanner.RootPaths {
		d.histories[root] = scheduler.RootHistory{Path: root, TicksSinceLastScanned: i}
	}

	return d, nil
}

// config returns the currently active configuration. Callers that need
// several fields to agree within one decision should capture a single
// snapshot via this accessor rather than re-reading it field by field, since
// a reload can swap the pointer between reads (spec.md §4.10 copy-on-write).
func (d *Daemon) config() config.Config {
	return *d.cfgPtr.Load()
}

// exitSupervisorGaveUp is the exit status spec.md §7 reserves for a worker
// exceeding its respawn budget.
const exitSupervisorGaveUp = 3

// escalate is invoked by the supervisor when a worker exceeds its respawn
// budget. A process-wide worker failing repeatedly is unrecoverable in
// place, so SBH logs and exits with status 3; an external process
// supervisor (systemd, launchd) is expected to restart the whole daemon.
func (d *Daemon) escalate(workerName string) {
	d.logger.Error("worker exceeded respawn budget, exiting process", zap.String("worker", workerName))
	os.Exit(exitSupervisorGaveUp)
}

// Run starts every worker under the supervisor and blocks until ctx is
// cancelled or a worker escalates.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("sbh daemon starting",
		zap.String("version", Version), zap.Int("pid", os.Getpid()), zap.String("mode", string(d.config().Mode)))

	d.supervisor.Register(ctx, "events", d.runEventForwarder)
	d.supervisor.Register(ctx, "monitor", d.runMonitor)
	d.supervisor.Register(ctx, "scanner", d.runScanner)
	d.supervisor.Register(ctx, "publisher", d.runPublisher)

	go d.supervisor.Supervise(ctx)

	<-ctx.Done()
	return d.Shutdown()
}

// ForceScan enqueues an immediate scan tick, bypassing the scheduler's
// normal interval; wired to SIGUSR1 (spec.md §4.10).
func (d *Daemon) ForceScan() {
	select {
	case d.forceCh <- struct{}{}:
	default:
	}
}

// Reload re-validates cfg and swaps the active config copy-on-write;
// in-flight scans keep using the old values (spec.md §4.10). Settings read
// from the config on each tick (pressure thresholds, min_score, walker and
// ballast settings) take effect on the next tick. The scoring engine,
// executor, scheduler and forecaster are built once in New and keep the
// weights, costs and other settings they were built with; Reload does not
// rebuild them. The swap is a single atomic pointer store, so concurrent
// readers in tickMonitor/runScanTick never observe a partially-updated config.
func (d *Daemon) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.cfgPtr.Store(&cfg)
	d.journal.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventConfigReloaded})
	return nil
}

// Shutdown cancels every supervised worker, releases every ballast pool's
// lock, writes a final state snapshot, and closes the journal (which flushes
// its queue). It does not wait for the workers to return: an executor batch
// in progress stops at its next candidate once its context is cancelled.
func (d *Daemon) Shutdown() error {
	d.logger.Info("sbh daemon shutting down")
	d.supervisor.Shutdown()

	d.mu.Lock()
	for _, p := range d.pipelines {
		if err := p.ballast.Unlock(); err != nil {
			d.logger.Warn("failed to release ballast lock on shutdown", zap.Error(err))
		}
	}
	d.mu.Unlock()

	d.publishState()
	return d.journal.Close()
}

// beat satisfies the supervisor's own liveness check and records the
// worker's last-progress time in the shared model, so the published
// state's DaemonInfo.LastHeartbeat (spec.md §3/§6) reflects it.
func (d *Daemon) beat(worker string, heartbeat func()) {
	heartbeat()
	d.model.Heartbeat(worker, time.Now())
}

func (d *Daemon) runEventForwarder(ctx context.Context, heartbeat func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-d.events:
			d.journal.Emit(evt)
			d.beat("events", heartbeat)
		}
	}
}

// runMonitor samples every configured mount each poll interval, feeds the
// forecaster, drives the per-mount PID loop, and acts on its decision.
func (d *Daemon) runMonitor(ctx context.Context, heartbeat func()) error {
	ticker := time.NewTicker(d.config().Pressure.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.tickMonitor(time.Now())
			d.beat("monitor", heartbeat)
		}
	}
}

func (d *Daemon) tickMonitor(now time.Time) {
	cfg := d.config()

	mounts, err := d.probe.ListMounts()
	if err != nil {
		d.logger.Error("failed to list mounts", zap.Error(err))
		d.model.AddErrors(1)
		return
	}

	for _, m := range mounts {
		total, free, err := d.probe.Sample(m.Path)
		if err != nil {
			d.logger.Warn("failed to sample mount", zap.String("mount", m.Path), zap.Error(err))
			continue
		}
		m.TotalBytes, m.FreeBytes = total, free
		m.Level = cfg.Pressure.Thresholds.Classify(m.FreePct())
		d.model.SetMount(m)

		d.journal.Emit(model.ActivityEvent{Timestamp: now, Kind: model.EventPressureSample, MountID: m.ID, Bytes: int64(free),
			Fields: map[string]any{"total_bytes": total, "free_pct": m.FreePct(), "level": m.Level.String()}})

		proj := d.forecaster.Observe(model.PressureSample{MountID: m.ID, FreeBytes: free, Timestamp: now})
		d.model.SetProjection(proj)
		d.model.SetRate(m.ID, d.forecaster.Rate(m.ID))

		d.journal.Emit(model.ActivityEvent{Timestamp: now, Kind: model.EventForecastEmitted, MountID: m.ID,
			Fields: map[string]any{
				"seconds_to_exhaustion": proj.SecondsToExhaustion,
				"danger_class":          proj.DangerClass.String(),
				"confidence":            proj.Confidence,
				"actionable":            proj.Actionable,
			}})

		pipeline := d.pipelineFor(m)
		decision := pipeline.loop.Tick(now, m.Level, m.FreePct()/100, proj, cfg.Pressure.Thresholds.GreenPct/100)

		d.journal.Emit(model.ActivityEvent{Timestamp: now, Kind: model.EventDecisionMade, MountID: m.ID,
			Fields: map[string]any{"action": decision.Action.String(), "urgency": decision.Urgency}})

		d.actOnDecision(m, decision)
	}
}

// poolIDFor derives a stable pool id from the mount id, so the id printed
// in the ballast file names and header (spec.md §6) survives a daemon
// restart without needing to persist a counter.
func poolIDFor(mountID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(mountID))
	return h.Sum64()
}

func (d *Daemon) pipelineFor(m model.Mount) *mountPipeline {
	cfg := d.config()

	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[m.ID]
	if !ok {
		fileCount, fileSize := cfg.Ballast.FileCount, cfg.Ballast.FileSizeBytes
		for _, o := range cfg.Ballast.Overrides {
			if o.MountID == m.ID {
				fileCount, fileSize = o.FileCount, o.FileSizeBytes
			}
		}

		ballastDir := filepath.Join(m.Path, ".sbh-ballast")
		_ = os.MkdirAll(ballastDir, 0o750)

		p = &mountPipeline{
			loop:    control.NewLoop(m.ID, control.DefaultGains()),
			ballast: ballast.NewPool(m.ID, ballastDir, poolIDFor(m.ID), fileSize),
		}
		if cfg.Ballast.AutoProvision {
			if err := p.ballast.Lock(); err == nil {
				if _, err := p.ballast.Provision(fileCount); err != nil {
					d.logger.Warn("ballast provisioning failed", zap.String("mount", m.ID), zap.Error(err))
				}
			}
		}
		d.pipelines[m.ID] = p
	}
	return p
}

func (d *Daemon) actOnDecision(m model.Mount, decision model.ControlDecision) {
	cfg := d.config()
	pipeline := d.pipelineFor(m)

	if decision.ReleaseN > 0 {
		freed, err := pipeline.ballast.Release(decision.ReleaseN)
		if err != nil {
			d.logger.Error("ballast release failed", zap.String("mount", m.ID), zap.Error(err))
		} else if freed > 0 {
			d.journal.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventBallastReleased, MountID: m.ID, Bytes: freed})
		}
	} else if cfg.Ballast.AutoProvision && m.Level == model.Green {
		// Replenishment only happens once pressure has returned to Green
		// (spec.md §4.8); provisioning under Yellow+ would itself consume
		// the free space the rest of the pipeline is trying to protect.
		if f, err := pipeline.ballast.Replenish(cfg.Ballast.FileCount, time.Duration(cfg.Ballast.ReplenishCooldownMinutes)*time.Minute, time.Now()); err == nil && f != nil {
			d.journal.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventBallastReplenished, MountID: m.ID, Path: f.Path})
		}
	}

	inv := pipeline.ballast.Inventory()
	d.model.SetBallastInventory(m.ID, inv)

	switch decision.Action {
	case model.ActionSoftScan, model.ActionAggressiveScan, model.ActionEmergency:
		d.requestBatchSize(decision.BatchSize)
		d.ForceScan()
	}
}

// requestBatchSize records bs as the pending scan batch-size override if it
// is more permissive than whatever is already pending, so the next scan
// tick honors the most urgent mount's graduated response (spec.md §4.3)
// even if several mounts signal in the same monitor tick.
func (d *Daemon) requestBatchSize(bs int) {
	for {
		cur := d.pendingBatchSize.Load()
		if !batchSizeMoreUrgent(bs, int(cur)) {
			return
		}
		if d.pendingBatchSize.CompareAndSwap(cur, int32(bs)) {
			return
		}
	}
}

// batchSizeMoreUrgent orders batch-size requests so unbounded (-1) always
// wins, "nothing pending" (0) always loses, and otherwise the larger batch
// wins.
func batchSizeMoreUrgent(candidate, current int) bool {
	if current == 0 {
		return true
	}
	if candidate == -1 {
		return current != -1
	}
	if current == -1 {
		return false
	}
	return candidate > current
}

// runScanner runs the scheduler/walker/scoring/executor pipeline on the
// scan budget's own interval, plus whenever ForceScan fires.
func (d *Daemon) runScanner(ctx context.Context, heartbeat func()) error {
	ticker := time.NewTicker(d.config().Scanner.ScanBudget)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runScanTick(ctx, false)
			d.beat("scanner", heartbeat)
		case <-d.forceCh:
			d.runScanTick(ctx, true)
			d.beat("scanner", heartbeat)
		}
	}
}

func (d *Daemon) runScanTick(ctx context.Context, forced bool) {
	cfg := d.config()
	start := time.Now()
	d.model.AddScans(1)

	scanCtx, cancel := context.WithTimeout(ctx, cfg.Scanner.ScanTimeout)
	defer cancel()

	d.mu.Lock()
	histories := make([]scheduler.RootHistory, 0, len(d.histories))
	for _, h := range d.histories {
		histories = append(histories, h)
	}
	d.mu.Unlock()

	lowConfidence := false
	for _, proj := range d.model.Projections() {
		if !proj.Actionable {
			lowConfidence = true
			break
		}
	}

	roots := d.scheduler.Select(histories, lowConfidence)
	d.journal.Emit(model.ActivityEvent{Timestamp: start, Kind: model.EventScanStarted,
		Fields: map[string]any{"roots": roots, "forced": forced}})

	var candidates []model.Candidate
	var candidatesMu sync.Mutex
	now := time.Now()
	var truncated bool
	var scannedRoots []string
	for _, root := range roots {
		if scanCtx.Err() != nil {
			truncated = true
			break
		}

		opts := walker.Options{
			Root:           root,
			ProtectedGlobs: cfg.Scanner.ProtectedGlobs,
			NamePatterns:   cfg.Scanner.NamePatterns,
			MaxDepth:       cfg.Scanner.MaxDepth,
			Parallelism:    cfg.Scanner.Parallelism,
			CrossDevices:   cfg.Scanner.CrossDevices,
		}
		err := walker.Walk(scanCtx, opts, func(c model.Candidate) {
			scored := d.scoring.Score(c, now)
			candidatesMu.Lock()
			candidates = append(candidates, scored)
			candidatesMu.Unlock()
			d.journal.Emit(model.ActivityEvent{Timestamp: now, Kind: model.EventCandidateScored, Path: scored.Path, Bytes: scored.Size,
				Fields: map[string]any{"score": scored.Score}})
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				truncated = true
			} else {
				d.logger.Warn("walk failed", zap.String("root", root), zap.Error(err))
				d.model.AddErrors(1)
			}
		}

		scannedRoots = append(scannedRoots, root)
		d.mu.Lock()
		h := d.histories[root]
		h.TicksSinceLastScanned = 0
		d.histories[root] = h
		d.mu.Unlock()

		if truncated {
			break
		}
	}

	var toDelete []model.Candidate
	for _, c := range candidates {
		if c.HasVeto() {
			continue
		}
		if c.Score >= cfg.Scoring.MinScore && d.scoring.ShouldDelete(c.Score) {
			toDelete = append(toDelete, c)
		}
	}

	var deleted int
	if cfg.Mode == config.ModeEnforce && len(toDelete) > 0 {
		batchCap := int(d.pendingBatchSize.Swap(0))
		results := d.executor.ExecuteBatch(scanCtx, toDelete, fingerprint, now, batchCap)
		for _, r := range results {
			if r.Deleted {
				deleted++
				d.model.AddDeletions(1)
				d.model.AddBytesFreed(uint64(r.Candidate.Size))
			} else if r.Err != nil {
				d.model.AddErrors(1)
			}
		}
	}

	d.mu.Lock()
	scannedThisTick := make(map[string]bool, len(scannedRoots))
	for _, r := range scannedRoots {
		scannedThisTick[r] = true
	}
	for path, h := range d.histories {
		if !scannedThisTick[path] {
			h.TicksSinceLastScanned++
			d.histories[path] = h
		}
	}
	d.mu.Unlock()

	if truncated {
		d.journal.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventScanTruncated,
			Fields: map[string]any{"elapsed_seconds": time.Since(start).Seconds(), "roots_scanned": len(scannedRoots), "roots_selected": len(roots)}})
	}

	summary := model.ScanSummary{StartedAt: start, FinishedAt: time.Now(), Candidates: len(candidates), Deleted: deleted}
	d.model.SetLastScan(summary)
	d.journal.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventScanFinished,
		Fields: map[string]any{"candidates": len(candidates), "deleted": deleted, "truncated": truncated}})
}

// fingerprint canonicalizes a candidate's (directory, pattern) identity for
// cooldown tracking, per spec.md §4.8.
func fingerprint(c model.Candidate) string {
	dir := filepath.Dir(c.Path)
	if c.PatternID != "" {
		return dir + "|" + c.PatternID
	}
	return dir + "|" + c.Role.String()
}

func (d *Daemon) runPublisher(ctx context.Context, heartbeat func()) error {
	ticker := time.NewTicker(d.config().Publisher.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.publishState()
			d.beat("publisher", heartbeat)
		}
	}
}

func (d *Daemon) publishState() {
	state := model.StateSnapshot{
		Daemon: model.DaemonInfo{
			PID:           os.Getpid(),
			Version:       Version,
			RunID:         d.publisher.RunID(),
			StartedAt:     d.startedAt,
			LastHeartbeat: d.model.Heartbeats(),
		},
		Pressure:    d.model.Mounts(),
		Rates:       d.model.Rates(),
		Projections: d.model.Projections(),
		Ballast:     d.model.BallastInventory(),
		Counters:    d.model.Counters(),
		LastScan:    d.model.LastScan(),
	}
	if err := d.publisher.Publish(state); err != nil {
		d.logger.Error("failed to publish state", zap.Error(err))
	}
}
