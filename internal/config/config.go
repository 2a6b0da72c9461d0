// Package config defines the validated configuration structure the core
// consumes, validates it, and supplies defaults. Load (load.go) reads a TOML
// file and overlays the keys it sets onto Default().
package config

import (
	"fmt"
	"time"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// PressureThresholds holds the descending free-percent thresholds that
// separate the five pressure levels.
type PressureThresholds struct {
	GreenPct  float64
	YellowPct float64
	OrangePct float64
	RedPct    float64
	// Below RedPct is Critical; there is no separate threshold for it.
}

// PredictionHorizons holds the seconds-to-exhaustion cutoffs for each danger
// class, per spec.md §3 Projection.
type PredictionHorizons struct {
	CriticalSeconds float64
	ImminentSeconds float64
	ActionSeconds   float64
	WarningSeconds  float64
	// MinConfidence below which a projection is emitted but non-actionable.
	MinConfidence float64
}

// Classify maps a free-space percentage to the discrete pressure level,
// per invariant #1 (strictly descending thresholds, totally ordered).
func (t PressureThresholds) Classify(freePct float64) model.PressureLevel {
	switch {
	case freePct >= t.GreenPct:
		return model.Green
	case freePct >= t.YellowPct:
		return model.Yellow
	case freePct >= t.OrangePct:
		return model.Orange
	case freePct >= t.RedPct:
		return model.Red
	default:
		return model.Critical
	}
}

// PressureConfig is the `[pressure]` / `[pressure.prediction]` section.
type PressureConfig struct {
	Thresholds      PressureThresholds
	Prediction      PredictionHorizons
	PollInterval    time.Duration
}

// ScannerConfig is the `[scanner]` section.
type ScannerConfig struct {
	RootPaths               []string
	ExcludedPaths            []string
	ProtectedGlobs           []string
	NamePatterns             []string // matched against basename; first match wins (spec.md §3/§4.6)
	MinFileAgeMinutes        int
	MaxDepth                 int
	Parallelism              int
	FollowSymlinks           bool
	CrossDevices             bool
	MaxDeleteBatch           int
	RepeatCooldownBaseSecs   int
	RepeatCooldownCapSecs    int
	RepeatCooldownQuietSecs  int
	ScanBudget               time.Duration
	ScanTimeout              time.Duration // per-scan wall-time budget; exceeding it truncates the scan (spec.md §5)
}

// ScoringWeights must sum to 1.0 (invariant #2).
type ScoringWeights struct {
	Location float64
	Pattern  float64
	Age      float64
	Size     float64
	Structure float64
}

// ScoringConfig is the `[scoring]` section.
type ScoringConfig struct {
	Weights         ScoringWeights
	FalsePositiveCost float64
	FalseNegativeCost float64
	CalibrationFloor  float64
	MinScore          float64
	CharacteristicSizeBytes int64
}

// BallastMountOverride overrides ballast sizing for a specific mount.
type BallastMountOverride struct {
	MountID       string
	FileCount     int
	FileSizeBytes int64
}

// BallastConfig is the `[ballast]` section.
type BallastConfig struct {
	FileCount               int
	FileSizeBytes           int64
	ReplenishCooldownMinutes int
	AutoProvision            bool
	Overrides                []BallastMountOverride
}

// SchedulerConfig is the `[scheduler]` section (VOI knobs).
type SchedulerConfig struct {
	ScanBudgetPerInterval int
	ExplorationQuota      float64 // fraction of budget, default 0.20
	IOCostWeight          float64
	FPRiskWeight          float64
	ExplorationWeight     float64
	FallbackAfterTicks    int // N ticks of low confidence before round-robin fallback (default 3)
	RNGSeed               int64
}

// PolicyMode selects how aggressively the daemon acts on decisions.
type PolicyMode string

const (
	ModeObserve PolicyMode = "observe"
	ModeCanary  PolicyMode = "canary"
	ModeEnforce PolicyMode = "enforce"
)

// PathsConfig is the `[paths]` section.
type PathsConfig struct {
	DataDir  string
	StateFile string
}

// PublisherConfig is the `[publisher]` section.
type PublisherConfig struct {
	Interval time.Duration
}

// Config is the fully validated structure the daemon core consumes.
type Config struct {
	Pressure  PressureConfig
	Scanner   ScannerConfig
	Scoring   ScoringConfig
	Ballast   BallastConfig
	Scheduler SchedulerConfig
	Publisher PublisherConfig
	Mode      PolicyMode
	Paths     PathsConfig
}

const epsilon = 1e-6

// Validate enforces invariant #1 (strictly descending thresholds) and
// invariant #2 (weights sum to 1.0, min_score <= calibration_floor) plus the
// structural minimums spec.md §6 calls out (poll_interval_ms >= 100).
func (c *Config) Validate() error {
	t := c.Pressure.Thresholds
	if !(t.GreenPct > t.YellowPct && t.YellowPct > t.OrangePct && t.OrangePct > t.RedPct) {
		return sbherrors.New(sbherrors.KindInvalidConfig,
			fmt.Sprintf("pressure thresholds must strictly descend green>yellow>orange>red, got %.2f/%.2f/%.2f/%.2f",
				t.GreenPct, t.YellowPct, t.OrangePct, t.RedPct))
	}

	if c.Pressure.PollInterval < 100*time.Millisecond {
		return sbherrors.New(sbherrors.KindInvalidConfig, "poll_interval_ms must be >= 100")
	}

	w := c.Scoring.Weights
	sum := w.Location + w.Pattern + w.Age + w.Size + w.Structure
	if sum < 1.0-epsilon || sum > 1.0+epsilon {
		return sbherrors.New(sbherrors.KindInvalidConfig,
			fmt.Sprintf("scoring weights must sum to 1.0, got %.6f", sum))
	}

	if c.Scoring.CalibrationFloor < 0 || c.Scoring.CalibrationFloor > 1 {
		return sbherrors.New(sbherrors.KindInvalidConfig, "calibration floor must be in [0,1]")
	}

	if c.Scoring.MinScore > c.Scoring.CalibrationFloor {
		return sbherrors.New(sbherrors.KindInvalidConfig, "min_score must not exceed calibration_floor")
	}

	if c.Scanner.MinFileAgeMinutes < 0 {
		return sbherrors.New(sbherrors.KindInvalidConfig, "min_file_age_minutes must be >= 0")
	}

	if c.Scanner.MaxDeleteBatch <= 0 {
		return sbherrors.New(sbherrors.KindInvalidConfig, "max_delete_batch must be > 0")
	}

	if c.Scanner.ScanTimeout <= 0 {
		return sbherrors.New(sbherrors.KindInvalidConfig, "scan_timeout_secs must be > 0")
	}

	if c.Publisher.Interval <= 0 {
		return sbherrors.New(sbherrors.KindInvalidConfig, "publisher interval_ms must be > 0")
	}

	switch c.Mode {
	case ModeObserve, ModeCanary, ModeEnforce:
	default:
		return sbherrors.New(sbherrors.KindInvalidConfig, fmt.Sprintf("unknown policy mode: %s", c.Mode))
	}

	return nil
}

// Default returns a Config populated with the defaults spec.md documents
// throughout §3/§4/§6, suitable as a starting point for tests and for the
// external TOML loader to overlay onto.
func Default() Config {
	return Config{
		Pressure: PressureConfig{
			Thresholds: PressureThresholds{
				GreenPct:  50,
				YellowPct: 25,
				OrangePct: 15,
				RedPct:    8,
			},
			Prediction: PredictionHorizons{
				CriticalSeconds: 2 * 60,
				ImminentSeconds: 5 * 60,
				ActionSeconds:   30 * 60,
				WarningSeconds:  60 * 60,
				MinConfidence:   0.7,
			},
			PollInterval: 1 * time.Second,
		},
		Scanner: ScannerConfig{
			NamePatterns:           []string{"*.tmp", "*.temp", "*.o", "*.obj", "*.log", "*.bak", "*.swp", "*.cache", "core.*", "*~"},
			MinFileAgeMinutes:      10,
			MaxDepth:               64,
			Parallelism:            8,
			FollowSymlinks:         false,
			CrossDevices:           false,
			MaxDeleteBatch:         20,
			RepeatCooldownBaseSecs: 300,
			RepeatCooldownCapSecs:  3600,
			RepeatCooldownQuietSecs: 3600,
			ScanBudget:              5 * time.Minute,
			ScanTimeout:             5 * time.Minute,
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				Location:  0.25,
				Pattern:   0.25,
				Age:       0.20,
				Size:      0.15,
				Structure: 0.15,
			},
			FalsePositiveCost:       50,
			FalseNegativeCost:       30,
			CalibrationFloor:        0.3,
			MinScore:                0.3,
			CharacteristicSizeBytes: 100 * 1024 * 1024,
		},
		Ballast: BallastConfig{
			FileCount:                3,
			FileSizeBytes:            256 * 1024 * 1024,
			ReplenishCooldownMinutes: 30,
			AutoProvision:            true,
		},
		Scheduler: SchedulerConfig{
			ScanBudgetPerInterval: 5,
			ExplorationQuota:      0.20,
			IOCostWeight:          0.1,
			FPRiskWeight:          0.2,
			ExplorationWeight:     0.05,
			FallbackAfterTicks:    3,
			RNGSeed:               1,
		},
		Publisher: PublisherConfig{
			Interval: 2 * time.Second,
		},
		Mode: ModeEnforce,
		Paths: PathsConfig{
			DataDir:   "/var/lib/sbh",
			StateFile: "/var/lib/sbh/state.json",
		},
	}
}
