package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		Budget:            5,
		ExplorationQuota:  0.2,
		Weights:           Weights{IOCostWeight: 0.1, FPRiskWeight: 0.2, ExplorationWeight: 0.05},
		FallbackAfterTicks: 3,
		RNGSeed:           1,
	}
}

func sampleHistories() []RootHistory {
	return []RootHistory{
		{Path: "/home/a/.cache", ProbabilityDeletable: 0.9, ExpectedBytesReclaimed: 1e9, EstimatedWalkCost: 10, HistoricalFPRate: 0.01, TicksSinceLastScanned: 5},
		{Path: "/home/a/node_modules", ProbabilityDeletable: 0.8, ExpectedBytesReclaimed: 5e8, EstimatedWalkCost: 50, HistoricalFPRate: 0.02, TicksSinceLastScanned: 2},
		{Path: "/home/a/build", ProbabilityDeletable: 0.5, ExpectedBytesReclaimed: 1e8, EstimatedWalkCost: 5, HistoricalFPRate: 0.0, TicksSinceLastScanned: 1},
		{Path: "/home/a/new_project", ProbabilityDeletable: 0, ExpectedBytesReclaimed: 0, EstimatedWalkCost: 1, HistoricalFPRate: 0, TicksSinceLastScanned: 0},
		{Path: "/home/a/Downloads", ProbabilityDeletable: 0.3, ExpectedBytesReclaimed: 2e8, EstimatedWalkCost: 20, HistoricalFPRate: 0.1, TicksSinceLastScanned: 10},
		{Path: "/home/a/tmp", ProbabilityDeletable: 0.95, ExpectedBytesReclaimed: 3e8, EstimatedWalkCost: 8, HistoricalFPRate: 0.0, TicksSinceLastScanned: 20},
	}
}

func TestSelectIsDeterministicAcrossRuns(t *testing.T) {
	h := sampleHistories()

	s1 := New(baseConfig())
	out1 := s1.Select(h, false)

	s2 := New(baseConfig())
	out2 := s2.Select(h, false)

	assert.Equal(t, out1, out2)
}

func TestSelectRespectsBudget(t *testing.T) {
	s := New(baseConfig())
	out := s.Select(sampleHistories(), false)
	assert.LessOrEqual(t, len(out), baseConfig().Budget)
}

func TestSelectTieBreaksByPath(t *testing.T) {
	histories := []RootHistory{
		{Path: "/z", ProbabilityDeletable: 0.5, ExpectedBytesReclaimed: 100},
		{Path: "/a", ProbabilityDeletable: 0.5, ExpectedBytesReclaimed: 100},
	}
	cfg := baseConfig()
	cfg.Budget = 2
	cfg.ExplorationQuota = 0
	s := New(cfg)
	out := s.Select(histories, false)
	require.Len(t, out, 2)
	assert.Equal(t, "/a", out[0], "identical EV must tie-break by path ascending")
}

func TestFallsBackToRoundRobinAfterSustainedLowConfidence(t *testing.T) {
	cfg := baseConfig()
	s := New(cfg)
	h := sampleHistories()

	s.Select(h, true)
	s.Select(h, true)
	out := s.Select(h, true) // third consecutive low-confidence tick hits the threshold

	sortedPaths := []string{"/home/a/.cache", "/home/a/Downloads", "/home/a/build", "/home/a/new_project", "/home/a/node_modules", "/home/a/tmp"}
	for _, p := range out {
		assert.Contains(t, sortedPaths, p)
	}
}

func TestConfidenceRecoveryResetsStreak(t *testing.T) {
	cfg := baseConfig()
	s := New(cfg)
	h := sampleHistories()

	s.Select(h, true)
	s.Select(h, true)
	s.Select(h, false) // resets the streak
	assert.Equal(t, 0, s.lowConfidenceStreak)
}

func TestExplorationQuotaReservesSlotsForLowEV(t *testing.T) {
	cfg := baseConfig()
	cfg.Budget = 2
	cfg.ExplorationQuota = 0.5
	s := New(cfg)
	out := s.Select(sampleHistories(), false)
	assert.Contains(t, out, "/home/a/new_project", "the unexplored zero-EV root should claim the exploration slot")
}
