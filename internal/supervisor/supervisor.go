// Package supervisor owns worker heartbeat monitoring and bounded
// respawn, adapted from the teacher's process-level guardian/watcher
// mutual supervision into goroutine-level supervision: SBH has one
// process with many cooperating workers rather than two cooperating
// daemons, so the supervisor watches goroutines instead of PIDs.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HangTimeout is how long a worker's heartbeat may go unadvanced before
// it's considered hung, per spec.md §4.10.
const HangTimeout = 30 * time.Second

// HeartbeatSampleInterval is how often the supervisor samples worker
// heartbeats.
const HeartbeatSampleInterval = 1 * time.Second

// RespawnWindow and MaxRespawnsInWindow bound how many times a worker may
// be respawned before the supervisor escalates to process exit.
const (
	RespawnWindow       = 5 * time.Minute
	MaxRespawnsInWindow = 3
)

// WorkerFunc is a supervised unit of work. It must return promptly when
// ctx is cancelled. heartbeat is called by the worker to prove liveness;
// workers that don't call it within HangTimeout are considered hung.
type WorkerFunc func(ctx context.Context, heartbeat func()) error

// worker tracks one supervised goroutine's state.
type worker struct {
	name        string
	fn          WorkerFunc
	lastBeat    time.Time
	respawnTimes []time.Time
	cancel      context.CancelFunc
}

// Supervisor runs a fixed set of named workers, restarting any that hang,
// up to a bounded number of times within a sliding window.
type Supervisor struct {
	mu      sync.Mutex
	workers map[string]*worker
	logger  *zap.Logger

	escalate func(workerName string) // called when a worker exceeds the respawn budget
}

// New constructs an empty Supervisor.
func New(logger *zap.Logger, escalate func(workerName string)) *Supervisor {
	return &Supervisor{
		workers: make(map[string]*worker),
		logger:  logger,
		escalate: escalate,
	}
}

// Register adds a named worker and starts it immediately under ctx.
func (s *Supervisor) Register(ctx context.Context, name string, fn WorkerFunc) {
	s.mu.Lock()
	w := &worker{name: name, fn: fn, lastBeat: time.Now()}
	s.workers[name] = w
	s.mu.Unlock()

	s.start(ctx, w)
}

func (s *Supervisor) start(ctx context.Context, w *worker) {
	workerCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	w.cancel = cancel
	s.mu.Unlock()

	heartbeat := func() {
		s.mu.Lock()
		w.lastBeat = time.Now()
		s.mu.Unlock()
	}

	go func() {
		err := w.fn(workerCtx, heartbeat)
		if err != nil && workerCtx.Err() == nil {
			s.logger.Warn("worker exited with error", zap.String("worker", w.name), zap.Error(err))
		}
	}()
}

// Supervise runs the heartbeat-sampling loop until ctx is cancelled. It
// should run in its own goroutine, typically from the daemon's main loop.
func (s *Supervisor) Supervise(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHangs(ctx)
		}
	}
}

func (s *Supervisor) checkHangs(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var hung []*worker
	for _, w := range s.workers {
		if now.Sub(w.lastBeat) > HangTimeout {
			hung = append(hung, w)
		}
	}
	s.mu.Unlock()

	for _, w := range hung {
		s.respawn(ctx, w, now)
	}
}

func (s *Supervisor) respawn(ctx context.Context, w *worker, now time.Time) {
	s.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}

	cutoff := now.Add(-RespawnWindow)
	kept := w.respawnTimes[:0]
	for _, t := range w.respawnTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.respawnTimes = append(kept, now)

	exceeded := len(w.respawnTimes) > MaxRespawnsInWindow
	w.lastBeat = now
	s.mu.Unlock()

	if exceeded {
		s.logger.Error("worker exceeded respawn budget, escalating",
			zap.String("worker", w.name), zap.Int("respawns", len(w.respawnTimes)))
		if s.escalate != nil {
			s.escalate(w.name)
		}
		return
	}

	s.logger.Warn("respawning hung worker", zap.String("worker", w.name))
	s.start(ctx, w)
}

// Shutdown cancels every supervised worker's context, used as part of
// graceful shutdown (spec.md §4.10: stop accepting new work, drain, flush,
// release, snapshot — each owned by the caller's own shutdown sequence;
// Shutdown here only stops the workers themselves).
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.cancel != nil {
			w.cancel()
		}
	}
}
