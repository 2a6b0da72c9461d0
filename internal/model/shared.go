package model

import (
	"sync"
	"time"
)

// SharedModel is the single owned structure behind a reader-writer lock that
// every worker reads and the relevant worker(s) write. It is constructed
// once in main and passed by reference to each worker — there is no
// process-wide singleton (spec.md §9).
type SharedModel struct {
	mu sync.RWMutex

	mounts      map[string]Mount
	projections map[string]Projection
	rates       map[string]float64
	ballast     map[string]MountBallastInventory
	counters    Counters
	lastScan    ScanSummary
	heartbeats  map[string]time.Time
}

// NewSharedModel constructs an empty SharedModel ready for use.
func NewSharedModel() *SharedModel {
	return &SharedModel{
		mounts:      make(map[string]Mount),
		projections: make(map[string]Projection),
		rates:       make(map[string]float64),
		ballast:     make(map[string]MountBallastInventory),
		heartbeats:  make(map[string]time.Time),
	}
}

// SetMount records the latest sample for a mount.
func (s *SharedModel) SetMount(m Mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[m.ID] = m
}

// Mount returns a mount by id and whether it was found.
func (s *SharedModel) Mount(id string) (Mount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mounts[id]
	return m, ok
}

// Mounts returns a snapshot copy of every known mount.
func (s *SharedModel) Mounts() map[string]Mount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Mount, len(s.mounts))
	for k, v := range s.mounts {
		out[k] = v
	}
	return out
}

// SetProjection records the latest forecaster projection for a mount.
func (s *SharedModel) SetProjection(p Projection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projections[p.MountID] = p
}

// Projections returns a snapshot copy of every known projection.
func (s *SharedModel) Projections() map[string]Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Projection, len(s.projections))
	for k, v := range s.projections {
		out[k] = v
	}
	return out
}

// SetRate records the latest EWMA rate (bytes/sec, signed) for a mount.
func (s *SharedModel) SetRate(mountID string, bytesPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[mountID] = bytesPerSec
}

// Rates returns a snapshot copy of every known rate.
func (s *SharedModel) Rates() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out
}

// SetBallastInventory records the current ballast counts for a mount.
func (s *SharedModel) SetBallastInventory(mountID string, inv MountBallastInventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ballast[mountID] = inv
}

// BallastInventory returns a snapshot copy of every mount's ballast counts.
func (s *SharedModel) BallastInventory() map[string]MountBallastInventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]MountBallastInventory, len(s.ballast))
	for k, v := range s.ballast {
		out[k] = v
	}
	return out
}

// AddScans/AddDeletions/AddBytesFreed/AddErrors/AddDropped/AddSqliteFailure
// bump the rolling counters. Invariant #4 requires bytes_freed to equal the
// sum over DeleteSucceeded events, so AddBytesFreed is called only for
// executor deletions (ballast releases are not counted).
func (s *SharedModel) AddScans(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Scans += n
}

func (s *SharedModel) AddDeletions(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Deletions += n
}

func (s *SharedModel) AddBytesFreed(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.BytesFreed += n
}

func (s *SharedModel) AddErrors(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Errors += n
}

func (s *SharedModel) AddDropped(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.DroppedEvents += n
}

func (s *SharedModel) AddSqliteFailure(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SqliteFailures += n
}

// Counters returns a copy of the current rolling counters.
func (s *SharedModel) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

// SetLastScan records the most recently completed scan's summary.
func (s *SharedModel) SetLastScan(sum ScanSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = sum
}

// LastScan returns the most recently completed scan's summary.
func (s *SharedModel) LastScan() ScanSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan
}

// Heartbeat records that the named worker made progress at time t.
func (s *SharedModel) Heartbeat(worker string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[worker] = t
}

// Heartbeats returns a snapshot copy of every worker's last heartbeat.
func (s *SharedModel) Heartbeats() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.heartbeats))
	for k, v := range s.heartbeats {
		out[k] = v
	}
	return out
}
