package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/focusd/sbh/internal/sbherrors"
)

// fileConfig mirrors the on-disk TOML schema (spec.md §1). Durations are
// expressed in the file as the more human-friendly *_ms/*_minutes/*_secs
// suffixes the spec documents, then converted into the Config's
// time.Duration fields in Load.
type fileConfig struct {
	Mode string `toml:"mode"`

	Pressure struct {
		Thresholds struct {
			GreenPct  *float64 `toml:"green_pct"`
			YellowPct *float64 `toml:"yellow_pct"`
			OrangePct *float64 `toml:"orange_pct"`
			RedPct    *float64 `toml:"red_pct"`
		} `toml:"thresholds"`
		Prediction struct {
			CriticalSeconds *float64 `toml:"critical_seconds"`
			ImminentSeconds *float64 `toml:"imminent_seconds"`
			ActionSeconds   *float64 `toml:"action_seconds"`
			WarningSeconds  *float64 `toml:"warning_seconds"`
			MinConfidence   *float64 `toml:"min_confidence"`
		} `toml:"prediction"`
		PollIntervalMs *int64 `toml:"poll_interval_ms"`
	} `toml:"pressure"`

	Scanner struct {
		RootPaths               []string `toml:"root_paths"`
		ExcludedPaths           []string `toml:"excluded_paths"`
		ProtectedGlobs          []string `toml:"protected_globs"`
		NamePatterns            []string `toml:"name_patterns"`
		MinFileAgeMinutes       *int     `toml:"min_file_age_minutes"`
		MaxDepth                *int     `toml:"max_depth"`
		Parallelism             *int     `toml:"parallelism"`
		FollowSymlinks          *bool    `toml:"follow_symlinks"`
		CrossDevices            *bool    `toml:"cross_devices"`
		MaxDeleteBatch          *int     `toml:"max_delete_batch"`
		RepeatCooldownBaseSecs  *int     `toml:"repeat_cooldown_base_secs"`
		RepeatCooldownCapSecs   *int     `toml:"repeat_cooldown_cap_secs"`
		RepeatCooldownQuietSecs *int     `toml:"repeat_cooldown_quiet_secs"`
		ScanBudgetSecs          *int     `toml:"scan_budget_secs"`
		ScanTimeoutSecs         *int     `toml:"scan_timeout_secs"`
	} `toml:"scanner"`

	Scoring struct {
		Weights struct {
			Location  *float64 `toml:"location"`
			Pattern   *float64 `toml:"pattern"`
			Age       *float64 `toml:"age"`
			Size      *float64 `toml:"size"`
			Structure *float64 `toml:"structure"`
		} `toml:"weights"`
		FalsePositiveCost       *float64 `toml:"false_positive_cost"`
		FalseNegativeCost       *float64 `toml:"false_negative_cost"`
		CalibrationFloor        *float64 `toml:"calibration_floor"`
		MinScore                *float64 `toml:"min_score"`
		CharacteristicSizeBytes *int64   `toml:"characteristic_size_bytes"`
	} `toml:"scoring"`

	Ballast struct {
		FileCount                *int   `toml:"file_count"`
		FileSizeBytes            *int64 `toml:"file_size_bytes"`
		ReplenishCooldownMinutes *int   `toml:"replenish_cooldown_minutes"`
		AutoProvision            *bool  `toml:"auto_provision"`
		Overrides                []struct {
			MountID       string `toml:"mount_id"`
			FileCount     int    `toml:"file_count"`
			FileSizeBytes int64  `toml:"file_size_bytes"`
		} `toml:"overrides"`
	} `toml:"ballast"`

	Scheduler struct {
		ScanBudgetPerInterval *int     `toml:"scan_budget_per_interval"`
		ExplorationQuota      *float64 `toml:"exploration_quota"`
		IOCostWeight          *float64 `toml:"io_cost_weight"`
		FPRiskWeight          *float64 `toml:"fp_risk_weight"`
		ExplorationWeight     *float64 `toml:"exploration_weight"`
		FallbackAfterTicks    *int     `toml:"fallback_after_ticks"`
		RNGSeed               *int64   `toml:"rng_seed"`
	} `toml:"scheduler"`

	Paths struct {
		DataDir   *string `toml:"data_dir"`
		StateFile *string `toml:"state_file"`
	} `toml:"paths"`

	Publisher struct {
		IntervalMs *int64 `toml:"interval_ms"`
	} `toml:"publisher"`
}

// Load reads a TOML config file at path and overlays it onto Default(),
// so a file needs only specify the fields it wants to override. An empty
// path returns Default() unmodified.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, sbherrors.Wrap(sbherrors.KindInvalidConfig, "failed to read config file", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, sbherrors.Wrap(sbherrors.KindInvalidConfig, "failed to parse config file", err)
	}

	applyOverlay(&cfg, fc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyOverlay(cfg *Config, fc fileConfig) {
	if fc.Mode != "" {
		cfg.Mode = PolicyMode(fc.Mode)
	}

	t := &cfg.Pressure.Thresholds
	overlayFloat(&t.GreenPct, fc.Pressure.Thresholds.GreenPct)
	overlayFloat(&t.YellowPct, fc.Pressure.Thresholds.YellowPct)
	overlayFloat(&t.OrangePct, fc.Pressure.Thresholds.OrangePct)
	overlayFloat(&t.RedPct, fc.Pressure.Thresholds.RedPct)

	p := &cfg.Pressure.Prediction
	overlayFloat(&p.CriticalSeconds, fc.Pressure.Prediction.CriticalSeconds)
	overlayFloat(&p.ImminentSeconds, fc.Pressure.Prediction.ImminentSeconds)
	overlayFloat(&p.ActionSeconds, fc.Pressure.Prediction.ActionSeconds)
	overlayFloat(&p.WarningSeconds, fc.Pressure.Prediction.WarningSeconds)
	overlayFloat(&p.MinConfidence, fc.Pressure.Prediction.MinConfidence)

	if fc.Pressure.PollIntervalMs != nil {
		cfg.Pressure.PollInterval = time.Duration(*fc.Pressure.PollIntervalMs) * time.Millisecond
	}

	s := &cfg.Scanner
	if fc.Scanner.RootPaths != nil {
		s.RootPaths = fc.Scanner.RootPaths
	}
	if fc.Scanner.ExcludedPaths != nil {
		s.ExcludedPaths = fc.Scanner.ExcludedPaths
	}
	if fc.Scanner.ProtectedGlobs != nil {
		s.ProtectedGlobs = fc.Scanner.ProtectedGlobs
	}
	if fc.Scanner.NamePatterns != nil {
		s.NamePatterns = fc.Scanner.NamePatterns
	}
	overlayInt(&s.MinFileAgeMinutes, fc.Scanner.MinFileAgeMinutes)
	overlayInt(&s.MaxDepth, fc.Scanner.MaxDepth)
	overlayInt(&s.Parallelism, fc.Scanner.Parallelism)
	overlayBool(&s.FollowSymlinks, fc.Scanner.FollowSymlinks)
	overlayBool(&s.CrossDevices, fc.Scanner.CrossDevices)
	overlayInt(&s.MaxDeleteBatch, fc.Scanner.MaxDeleteBatch)
	overlayInt(&s.RepeatCooldownBaseSecs, fc.Scanner.RepeatCooldownBaseSecs)
	overlayInt(&s.RepeatCooldownCapSecs, fc.Scanner.RepeatCooldownCapSecs)
	overlayInt(&s.RepeatCooldownQuietSecs, fc.Scanner.RepeatCooldownQuietSecs)
	if fc.Scanner.ScanBudgetSecs != nil {
		s.ScanBudget = time.Duration(*fc.Scanner.ScanBudgetSecs) * time.Second
	}
	if fc.Scanner.ScanTimeoutSecs != nil {
		s.ScanTimeout = time.Duration(*fc.Scanner.ScanTimeoutSecs) * time.Second
	}

	w := &cfg.Scoring.Weights
	overlayFloat(&w.Location, fc.Scoring.Weights.Location)
	overlayFloat(&w.Pattern, fc.Scoring.Weights.Pattern)
	overlayFloat(&w.Age, fc.Scoring.Weights.Age)
	overlayFloat(&w.Size, fc.Scoring.Weights.Size)
	overlayFloat(&w.Structure, fc.Scoring.Weights.Structure)
	overlayFloat(&cfg.Scoring.FalsePositiveCost, fc.Scoring.FalsePositiveCost)
	overlayFloat(&cfg.Scoring.FalseNegativeCost, fc.Scoring.FalseNegativeCost)
	overlayFloat(&cfg.Scoring.CalibrationFloor, fc.Scoring.CalibrationFloor)
	overlayFloat(&cfg.Scoring.MinScore, fc.Scoring.MinScore)
	overlayInt64(&cfg.Scoring.CharacteristicSizeBytes, fc.Scoring.CharacteristicSizeBytes)

	b := &cfg.Ballast
	overlayInt(&b.FileCount, fc.Ballast.FileCount)
	overlayInt64(&b.FileSizeBytes, fc.Ballast.FileSizeBytes)
	overlayInt(&b.ReplenishCooldownMinutes, fc.Ballast.ReplenishCooldownMinutes)
	overlayBool(&b.AutoProvision, fc.Ballast.AutoProvision)
	if len(fc.Ballast.Overrides) > 0 {
		b.Overrides = b.Overrides[:0]
		for _, o := range fc.Ballast.Overrides {
			b.Overrides = append(b.Overrides, BallastMountOverride{
				MountID: o.MountID, FileCount: o.FileCount, FileSizeBytes: o.FileSizeBytes,
			})
		}
	}

	sc := &cfg.Scheduler
	overlayInt(&sc.ScanBudgetPerInterval, fc.Scheduler.ScanBudgetPerInterval)
	overlayFloat(&sc.ExplorationQuota, fc.Scheduler.ExplorationQuota)
	overlayFloat(&sc.IOCostWeight, fc.Scheduler.IOCostWeight)
	overlayFloat(&sc.FPRiskWeight, fc.Scheduler.FPRiskWeight)
	overlayFloat(&sc.ExplorationWeight, fc.Scheduler.ExplorationWeight)
	overlayInt(&sc.FallbackAfterTicks, fc.Scheduler.FallbackAfterTicks)
	overlayInt64(&sc.RNGSeed, fc.Scheduler.RNGSeed)

	if fc.Paths.DataDir != nil {
		cfg.Paths.DataDir = *fc.Paths.DataDir
	}
	if fc.Paths.StateFile != nil {
		cfg.Paths.StateFile = *fc.Paths.StateFile
	}

	if fc.Publisher.IntervalMs != nil {
		cfg.Publisher.Interval = time.Duration(*fc.Publisher.IntervalMs) * time.Millisecond
	}
}

func overlayFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func overlayInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func overlayInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func overlayBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
