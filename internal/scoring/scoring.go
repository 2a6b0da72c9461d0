// Package scoring computes the five-factor deletability score for a
// candidate and applies the Bayesian expected-loss decision layer with a
// rolling calibration multiplier.
package scoring

import (
	"math"
	"time"

	"github.com/focusd/sbh/internal/model"
)

// Weights are the five factor weights combined by weighted sum; they must
// sum to 1.0, enforced by config.Validate (invariant #2).
type Weights struct {
	Location  float64
	Pattern   float64
	Age       float64
	Size      float64
	Structure float64
}

// Costs parameterize the Bayesian expected-loss decision: FalsePositive is
// the cost of deleting something that should have been kept, FalseNegative
// the cost of keeping something that should have been deleted.
type Costs struct {
	FalsePositive float64
	FalseNegative float64
}

// Config bundles the scoring engine's tunables.
type Config struct {
	Weights            Weights
	Costs              Costs
	CalibrationFloor   float64
	CharacteristicSize float64 // bytes, for the size-score exponential decay
}

// Calibrator tracks a rolling record of recent deletions and post-hoc
// "this was wrong" signals, producing a single multiplier in
// [CalibrationFloor, 1] applied to the computed deletion probability.
type Calibrator struct {
	floor       float64
	totalCount  int
	wrongCount  int
}

// NewCalibrator constructs a calibrator with the given floor.
func NewCalibrator(floor float64) *Calibrator {
	return &Calibrator{floor: floor}
}

// RecordDeletion registers a completed deletion; wasWrong marks a later
// post-hoc signal that it should not have happened.
func (c *Calibrator) RecordDeletion(wasWrong bool) {
	c.totalCount++
	if wasWrong {
		c.wrongCount++
	}
}

// Multiplier returns the current calibration multiplier, never below floor.
func (c *Calibrator) Multiplier() float64 {
	if c.totalCount == 0 {
		return 1.0
	}
	errorRate := float64(c.wrongCount) / float64(c.totalCount)
	m := 1.0 - errorRate
	if m < c.floor {
		return c.floor
	}
	return m
}

// Engine scores candidates and applies the decision layer.
type Engine struct {
	cfg        Config
	calibrator *Calibrator
}

// NewEngine constructs a scoring Engine.
func NewEngine(cfg Config, calibrator *Calibrator) *Engine {
	return &Engine{cfg: cfg, calibrator: calibrator}
}

// Score computes the five factor scores and their calibrated weighted
// combination for one candidate; the Bayesian delete decision is made
// separately by ShouldDelete. now is injected for testability.
func (e *Engine) Score(c model.Candidate, now time.Time) model.Candidate {
	factors := model.ScoreFactors{
		Location:  locationScore(c.Role),
		Pattern:   patternScore(c.PatternID),
		Age:       ageScore(now.Sub(c.Mtime), c.Role),
		Size:      sizeScore(c.Size, e.cfg.CharacteristicSize),
		Structure: structureScore(c.Role),
	}

	w := e.cfg.Weights
	raw := w.Location*factors.Location + w.Pattern*factors.Pattern +
		w.Age*factors.Age + w.Size*factors.Size + w.Structure*factors.Structure

	calibrated := raw * e.calibrator.Multiplier()

	c.Factors = factors
	c.Score = calibrated
	return c
}

// ShouldDelete applies the Bayesian expected-loss decision: compares
// expected loss of Keep (missing a deletable artifact, weighted by
// FalseNegative cost and probability the file IS deletable) against
// expected loss of Delete (wrongly removing something needed, weighted by
// FalsePositive cost and probability the file is NOT deletable). A tie
// favors Keep.
func (e *Engine) ShouldDelete(score float64) bool {
	pDeletable := score
	lossKeep := pDeletable * e.cfg.Costs.FalseNegative
	lossDelete := (1 - pDeletable) * e.cfg.Costs.FalsePositive
	return lossDelete < lossKeep
}

func locationScore(role model.DirectoryRole) float64 {
	switch role {
	case model.RoleTemp:
		return 0.95
	case model.RoleDependencyCache, model.RoleNodeModules:
		return 0.8
	case model.RoleBuildOutput:
		return 0.6
	case model.RoleSource:
		return 0.05
	default:
		return 0.3
	}
}

func patternScore(patternID string) float64 {
	if patternID == "" {
		return 0
	}
	return 0.7
}

// ageScore peaks in the 4-10 hour range; files younger than 10 minutes
// score 0 (also a hard veto elsewhere); files older than 24h decay by
// role, with temp files holding a high score indefinitely and build
// outputs decaying slowly.
func ageScore(age time.Duration, role model.DirectoryRole) float64 {
	minutes := age.Minutes()
	if minutes < 10 {
		return 0
	}

	hours := age.Hours()
	switch {
	case hours < 4:
		// Ramp from the 10-minute floor up to the peak at 4h.
		return clamp01((hours - (10.0 / 60.0)) / (4 - 10.0/60.0))
	case hours <= 10:
		return 1.0
	case hours <= 24:
		// Ramp down from the peak toward the role-dependent floor by 24h.
		floor := oldAgeFloor(role)
		t := (hours - 10) / (24 - 10)
		return 1.0 - t*(1.0-floor)
	default:
		return oldAgeFloor(role)
	}
}

func oldAgeFloor(role model.DirectoryRole) float64 {
	switch role {
	case model.RoleTemp:
		return 0.9
	case model.RoleBuildOutput:
		return 0.6
	case model.RoleDependencyCache, model.RoleNodeModules:
		return 0.5
	default:
		return 0.3
	}
}

func sizeScore(bytes int64, characteristicSize float64) float64 {
	if characteristicSize <= 0 {
		characteristicSize = 1
	}
	return 1 - math.Exp(-float64(bytes)/characteristicSize)
}

func structureScore(role model.DirectoryRole) float64 {
	switch role {
	case model.RoleNodeModules, model.RoleDependencyCache:
		return 0.85
	case model.RoleBuildOutput:
		return 0.7
	case model.RoleTemp:
		return 0.6
	case model.RoleSource:
		return 0.0
	default:
		return 0.4
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
