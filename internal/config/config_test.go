package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusd/sbh/internal/model"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigCarriesNamePatterns(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.Scanner.NamePatterns)
	assert.Contains(t, cfg.Scanner.NamePatterns, "*.tmp")
}

func TestValidateRejectsNonDescendingThresholds(t *testing.T) {
	cfg := Default()
	cfg.Pressure.Thresholds.YellowPct = 60
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Weights.Location = 0.9
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMinScoreAboveCalibrationFloor(t *testing.T) {
	cfg := Default()
	cfg.Scoring.MinScore = cfg.Scoring.CalibrationFloor + 0.1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTooFastPollInterval(t *testing.T) {
	cfg := Default()
	cfg.Pressure.PollInterval = 10
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveScanTimeout(t *testing.T) {
	cfg := Default()
	cfg.Scanner.ScanTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositivePublisherInterval(t *testing.T) {
	cfg := Default()
	cfg.Publisher.Interval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = "sabotage"
	assert.Error(t, cfg.Validate())
}

func TestThresholdsClassify(t *testing.T) {
	th := Default().Pressure.Thresholds
	cases := []struct {
		pct  float64
		want model.PressureLevel
	}{
		{90, model.Green},
		{50, model.Green},
		{30, model.Yellow},
		{20, model.Orange},
		{10, model.Red},
		{2, model.Critical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, th.Classify(c.pct), "pct=%v", c.pct)
	}
}
