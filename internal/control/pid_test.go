package control

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/focusd/sbh/internal/model"
)

func noProjection() model.Projection {
	return model.Projection{SecondsToExhaustion: math.Inf(1), DangerClass: model.DangerNone, Confidence: 1, Actionable: true}
}

func TestObserveWhenGreenAndNoPrediction(t *testing.T) {
	l := NewLoop("m1", DefaultGains())
	now := time.Now()
	d := l.Tick(now, model.Green, 0.8, noProjection(), 0.5)
	assert.Equal(t, model.ActionObserve, d.Action)
	assert.Equal(t, 0, d.BatchSize)
}

func TestEmergencyOnCriticalLevel(t *testing.T) {
	l := NewLoop("m1", DefaultGains())
	now := time.Now()
	d := l.Tick(now, model.Critical, 0.02, noProjection(), 0.5)
	assert.Equal(t, model.ActionEmergency, d.Action)
	assert.Equal(t, 3, d.ReleaseN)
	assert.Equal(t, -1, d.BatchSize)
}

func TestPredictiveUrgencyOverridesLowLevel(t *testing.T) {
	l := NewLoop("m1", DefaultGains())
	now := time.Now()
	// Green level but exhaustion imminent relative to the action horizon.
	proj := model.Projection{SecondsToExhaustion: 10, DangerClass: model.DangerCritical, Confidence: 0.9, Actionable: true}
	d := l.Tick(now, model.Green, 0.9, proj, 0.5)
	assert.Equal(t, model.ActionEmergency, d.Action, "predictive urgency must not be ignored just because current level is Green")
}

func TestAggressiveReleasesBallastOnlyWhenRed(t *testing.T) {
	gains := DefaultGains()

	lRed := NewLoop("red", gains)
	now := time.Now()
	dRed := lRed.Tick(now, model.Red, 0.08, model.Projection{SecondsToExhaustion: 2000, Confidence: 0.9, Actionable: true}, 0.5)
	if dRed.Action == model.ActionAggressiveScan {
		assert.Equal(t, 1, dRed.ReleaseN)
	}

	lOrange := NewLoop("orange", gains)
	dOrange := lOrange.Tick(now, model.Orange, 0.15, model.Projection{SecondsToExhaustion: 2000, Confidence: 0.9, Actionable: true}, 0.5)
	if dOrange.Action == model.ActionAggressiveScan {
		assert.Equal(t, 0, dOrange.ReleaseN)
	}
}

func TestHysteresisRequiresTwoTicksToDowngrade(t *testing.T) {
	l := NewLoop("m1", DefaultGains())
	base := time.Now()

	// Drive to Emergency.
	d1 := l.Tick(base, model.Critical, 0.01, noProjection(), 0.5)
	assert.Equal(t, model.ActionEmergency, d1.Action)

	// Drop to Green instantly - hysteresis should prevent immediate downgrade.
	d2 := l.Tick(base.Add(time.Second), model.Green, 0.9, noProjection(), 0.5)
	assert.NotEqual(t, model.ActionObserve, d2.Action, "single below-threshold tick must not downgrade")

	d3 := l.Tick(base.Add(2*time.Second), model.Green, 0.9, noProjection(), 0.5)
	assert.Equal(t, model.ActionObserve, d3.Action, "second consecutive below-threshold tick should downgrade")
}

func TestUrgencyAlwaysClamped(t *testing.T) {
	l := NewLoop("m1", DefaultGains())
	now := time.Now()
	for i := 0; i < 20; i++ {
		d := l.Tick(now.Add(time.Duration(i)*time.Second), model.Critical, -0.5, noProjection(), 2.0)
		assert.GreaterOrEqual(t, d.Urgency, 0.0)
		assert.LessOrEqual(t, d.Urgency, 1.0)
	}
}
