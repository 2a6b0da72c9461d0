// Package scheduler implements the value-of-information scan scheduler:
// given a fixed per-interval scan budget and a set of candidate roots, it
// ranks roots by expected value, reserves an exploration quota for
// low-evidence roots, and falls back to deterministic round-robin when the
// forecaster's confidence has been low for too long.
package scheduler

import (
	"math/rand"
	"sort"
)

// RootHistory is the scheduler's running record for one candidate root.
type RootHistory struct {
	Path                  string
	ProbabilityDeletable  float64 // P(has_deletable_artifacts), supplied by the caller; internal/daemon leaves it at zero
	ExpectedBytesReclaimed float64
	EstimatedWalkCost     float64
	HistoricalFPRate      float64
	TicksSinceLastScanned int
}

// Weights holds the VOI formula's tunable coefficients.
type Weights struct {
	IOCostWeight     float64
	FPRiskWeight     float64
	ExplorationWeight float64
}

// Config holds the scheduler's tunable parameters.
type Config struct {
	Budget            int
	ExplorationQuota  float64 // fraction of Budget reserved for low/unknown EV roots
	Weights           Weights
	FallbackAfterTicks int // consecutive low-confidence ticks before round-robin
	RNGSeed           int64
}

// Scheduler selects which roots to scan each tick.
type Scheduler struct {
	cfg Config
	rng *rand.Rand

	lowConfidenceStreak int
	roundRobinCursor    int
}

// New constructs a Scheduler seeded per cfg.RNGSeed, so repeated runs with
// identical inputs produce a byte-identical schedule.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.RNGSeed)),
	}
}

// scoredRoot pairs a root with its computed EV for one selection pass.
type scoredRoot struct {
	path string
	ev   float64
	low  bool // low or unknown EV, eligible for the exploration quota
}

func (s *Scheduler) expectedValue(h RootHistory) float64 {
	w := s.cfg.Weights
	return h.ProbabilityDeletable*h.ExpectedBytesReclaimed -
		w.IOCostWeight*h.EstimatedWalkCost -
		w.FPRiskWeight*h.HistoricalFPRate +
		w.ExplorationWeight*float64(h.TicksSinceLastScanned)
}

// Select returns the ordered list of root paths to scan this tick, bounded
// by the configured budget. confidenceLow indicates whether the
// forecaster's confidence is currently below its floor; when that has been
// true for FallbackAfterTicks consecutive calls, Select switches to
// deterministic round-robin over the supplied roots until confidence
// recovers.
func (s *Scheduler) Select(histories []RootHistory, confidenceLow bool) []string {
	if confidenceLow {
		s.lowConfidenceStreak++
	} else {
		s.lowConfidenceStreak = 0
	}

	if s.cfg.FallbackAfterTicks > 0 && s.lowConfidenceStreak >= s.cfg.FallbackAfterTicks {
		return s.roundRobin(histories)
	}

	return s.rankedSelect(histories)
}

func (s *Scheduler) roundRobin(histories []RootHistory) []string {
	n := len(histories)
	if n == 0 {
		return nil
	}
	sorted := make([]RootHistory, n)
	copy(sorted, histories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	budget := s.cfg.Budget
	if budget <= 0 || budget > n {
		budget = n
	}

	out := make([]string, 0, budget)
	for i := 0; i < budget; i++ {
		idx := (s.roundRobinCursor + i) % n
		out = append(out, sorted[idx].Path)
	}
	s.roundRobinCursor = (s.roundRobinCursor + budget) % n
	return out
}

func (s *Scheduler) rankedSelect(histories []RootHistory) []string {
	scored := make([]scoredRoot, 0, len(histories))
	for _, h := range histories {
		ev := s.expectedValue(h)
		scored = append(scored, scoredRoot{path: h.Path, ev: ev, low: h.ProbabilityDeletable == 0 || ev <= 0})
	}

	// Deterministic sort by (-EV, root_path): ties broken by path,
	// per spec.md §4.4's determinism requirement.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].ev != scored[j].ev {
			return scored[i].ev > scored[j].ev
		}
		return scored[i].path < scored[j].path
	})

	budget := s.cfg.Budget
	if budget <= 0 {
		return nil
	}
	if budget > len(scored) {
		budget = len(scored)
	}

	explorationSlots := int(float64(budget) * s.cfg.ExplorationQuota)
	mainSlots := budget - explorationSlots

	out := make([]string, 0, budget)
	used := make(map[string]bool, budget)

	for i := 0; i < len(scored) && len(out) < mainSlots; i++ {
		out = append(out, scored[i].path)
		used[scored[i].path] = true
	}

	// Exploration quota: fill remaining slots from low/unknown-EV roots not
	// already selected. Candidates in this pool are, by definition, roots
	// the ranking can't yet tell apart, so which ones get explored this
	// tick is decided by the scheduler's seeded RNG rather than an
	// arbitrary tie-break on path — that still makes repeated runs with
	// the same seed and inputs byte-identical, while actually varying
	// which low-EV roots get sampled across ticks.
	var lowCandidates []scoredRoot
	for i := len(scored) - 1; i >= 0; i-- {
		r := scored[i]
		if used[r.path] {
			continue
		}
		if r.low {
			lowCandidates = append(lowCandidates, r)
		}
	}
	s.rng.Shuffle(len(lowCandidates), func(i, j int) {
		lowCandidates[i], lowCandidates[j] = lowCandidates[j], lowCandidates[i]
	})
	for i := 0; i < len(lowCandidates) && len(out) < budget; i++ {
		out = append(out, lowCandidates[i].path)
		used[lowCandidates[i].path] = true
	}

	// If the exploration quota couldn't be filled (few low-EV roots),
	// backfill from the remaining high-EV roots to use the full budget.
	for i := 0; i < len(scored) && len(out) < budget; i++ {
		if used[scored[i].path] {
			continue
		}
		out = append(out, scored[i].path)
		used[scored[i].path] = true
	}

	return out
}
