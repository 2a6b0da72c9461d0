// Package forecaster maintains per-mount exhaustion forecasts: an
// exponentially-weighted estimate of free bytes and fill rate, a
// second-order acceleration term, and a confidence-scored projection of
// seconds-to-exhaustion. It owns no shared state beyond its own per-mount
// series and is read by the control package each tick.
package forecaster

import (
	"math"
	"time"

	"github.com/focusd/sbh/internal/model"
)

// minAlpha/maxAlpha bound the adaptive smoothing factor. A small alpha
// favors stability; a large one favors responsiveness to a genuine regime
// change. The open question in spec.md §4.2 leaves the adaptation function
// unspecified beyond "monotone in recent residual variance" — this uses a
// linear ramp between the bounds.
const (
	minAlpha = 0.05
	maxAlpha = 0.6

	// rateWindowSize bounds the sliding window used for the acceleration
	// estimate and for residual variance.
	rateWindowSize = 8

	// maxProjectionSeconds clamps project_time's output so a near-zero or
	// negative discriminant never yields an unbounded number.
	maxProjectionSeconds = 7 * 24 * 3600.0
)

// State is one mount's forecaster series. Zero value is not ready for use;
// construct with NewState.
type State struct {
	mountID string

	ewmaFree float64
	ewmaRate float64 // bytes/sec, signed (negative = shrinking)
	haveEwma bool

	lastFree  uint64
	lastTime  time.Time
	haveLast  bool

	rateWindow []float64 // recent instantaneous rate samples, oldest first
	sampleCount int

	trend model.Trend
}

// NewState constructs a fresh, empty forecaster series for one mount.
func NewState(mountID string) *State {
	return &State{mountID: mountID}
}

// Observe folds a new pressure sample into the series and returns the
// resulting projection. Samples must be supplied in non-decreasing
// timestamp order; an out-of-order sample is ignored (dt <= 0).
func (s *State) Observe(sample model.PressureSample, horizons Horizons) model.Projection {
	free := float64(sample.FreeBytes)

	if !s.haveEwma {
		s.ewmaFree = free
		s.ewmaRate = 0
		s.haveEwma = true
		s.lastFree = sample.FreeBytes
		s.lastTime = sample.Timestamp
		s.haveLast = true
		s.sampleCount = 1
		s.trend = model.Stable
		return s.project(horizons)
	}

	dt := sample.Timestamp.Sub(s.lastTime).Seconds()
	if dt <= 0 {
		return s.project(horizons)
	}

	instantRate := (free - float64(s.lastFree)) / dt

	alpha := s.adaptiveAlpha(free)
	s.ewmaFree = alpha*free + (1-alpha)*s.ewmaFree
	s.ewmaRate = alpha*instantRate + (1-alpha)*s.ewmaRate

	s.rateWindow = append(s.rateWindow, instantRate)
	if len(s.rateWindow) > rateWindowSize {
		s.rateWindow = s.rateWindow[len(s.rateWindow)-rateWindowSize:]
	}

	s.lastFree = sample.FreeBytes
	s.lastTime = sample.Timestamp
	s.sampleCount++
	s.trend = classifyTrend(s.ewmaRate, s.acceleration())

	return s.project(horizons)
}

// adaptiveAlpha grows when the current sample deviates from the EWMA by a
// meaningful fraction of the tracked magnitude, and shrinks toward minAlpha
// in steady state — the monotone-in-deviation rule spec.md §4.2 leaves open.
func (s *State) adaptiveAlpha(free float64) float64 {
	base := math.Max(s.ewmaFree, 1)
	deviation := math.Abs(free-s.ewmaFree) / base
	// deviation of 0 -> minAlpha; deviation of 0.1 (10% swing) or more -> maxAlpha.
	t := math.Min(deviation/0.1, 1.0)
	return minAlpha + t*(maxAlpha-minAlpha)
}

// acceleration estimates the second-order term (bytes/sec^2) from the
// sliding window of instantaneous rate samples via a simple finite
// difference of window endpoints, averaged over elapsed samples.
func (s *State) acceleration() float64 {
	n := len(s.rateWindow)
	if n < 2 {
		return 0
	}
	return (s.rateWindow[n-1] - s.rateWindow[0]) / float64(n-1)
}

// residualVariance is the sample variance of the rate window, used as the
// confidence penalty for a noisy, unreliable trend.
func (s *State) residualVariance() float64 {
	n := len(s.rateWindow)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range s.rateWindow {
		mean += r
	}
	mean /= float64(n)

	var sum float64
	for _, r := range s.rateWindow {
		d := r - mean
		sum += d * d
	}
	return sum / float64(n-1)
}

// projectTime returns seconds until ewmaFree reaches zero given the current
// rate and acceleration, or +Inf if free is non-decreasing. Solves
// 0 = ewmaFree + rate*t + 0.5*accel*t^2 for the smallest positive root,
// falling back to the linear solution when the discriminant is negative or
// acceleration is negligible.
func (s *State) projectTime() float64 {
	if s.ewmaRate >= 0 {
		return math.Inf(1)
	}

	accel := s.acceleration()
	if math.Abs(accel) < 1e-9 {
		return linearProjection(s.ewmaFree, s.ewmaRate)
	}

	a := 0.5 * accel
	b := s.ewmaRate
	c := s.ewmaFree

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return linearProjection(s.ewmaFree, s.ewmaRate)
	}

	sqrtDisc := math.Sqrt(discriminant)
	root1 := (-b + sqrtDisc) / (2 * a)
	root2 := (-b - sqrtDisc) / (2 * a)

	t := smallestPositiveRoot(root1, root2)
	if t < 0 {
		return linearProjection(s.ewmaFree, s.ewmaRate)
	}
	if t > maxProjectionSeconds {
		return maxProjectionSeconds
	}
	return t
}

func linearProjection(free, rate float64) float64 {
	if rate >= 0 {
		return math.Inf(1)
	}
	t := -free / rate
	if t < 0 {
		return 0
	}
	if t > maxProjectionSeconds {
		return maxProjectionSeconds
	}
	return t
}

func smallestPositiveRoot(a, b float64) float64 {
	candidates := make([]float64, 0, 2)
	if a >= 0 {
		candidates = append(candidates, a)
	}
	if b >= 0 {
		candidates = append(candidates, b)
	}
	if len(candidates) == 0 {
		return -1
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c < best {
			best = c
		}
	}
	return best
}

// confidence combines sample count (weight 0.6, saturating at 20 samples)
// and residual variance (weight 0.4) into a [0,1] score; it has no recency
// term.
func (s *State) confidence() float64 {
	countScore := math.Min(float64(s.sampleCount)/20.0, 1.0)

	variance := s.residualVariance()
	magnitude := math.Max(math.Abs(s.ewmaRate), 1.0)
	noiseRatio := math.Sqrt(variance) / magnitude
	varianceScore := 1.0 / (1.0 + noiseRatio)

	c := 0.6*countScore + 0.4*varianceScore
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// Horizons carries the seconds-to-exhaustion cutoffs and minimum confidence
// used to classify a Projection's danger class.
type Horizons struct {
	CriticalSeconds float64
	ImminentSeconds float64
	ActionSeconds   float64
	WarningSeconds  float64
	MinConfidence   float64
}

func (s *State) project(h Horizons) model.Projection {
	seconds := s.projectTime()
	conf := s.confidence()

	return model.Projection{
		MountID:             s.mountID,
		SecondsToExhaustion: seconds,
		DangerClass:         classifyDanger(seconds, h),
		Confidence:          conf,
		Actionable:          conf >= h.MinConfidence,
	}
}

func classifyDanger(seconds float64, h Horizons) model.DangerClass {
	switch {
	case seconds <= h.CriticalSeconds:
		return model.DangerCritical
	case seconds <= h.ImminentSeconds:
		return model.DangerImminent
	case seconds <= h.ActionSeconds:
		return model.DangerAction
	case seconds <= h.WarningSeconds:
		return model.DangerWarning
	default:
		return model.DangerNone
	}
}

func classifyTrend(rate, accel float64) model.Trend {
	const flatRate = 1024.0 // bytes/sec considered noise floor
	switch {
	case rate < -flatRate && accel < -flatRate:
		return model.Accelerating
	case rate < -flatRate:
		return model.Degrading
	case rate > flatRate:
		return model.Improving
	default:
		return model.Stable
	}
}

// Trend returns the current trend classification.
func (s *State) Trend() model.Trend { return s.trend }

// Rate returns the current EWMA rate in bytes/sec, signed.
func (s *State) Rate() float64 { return s.ewmaRate }

// SampleCount returns how many samples this series has observed.
func (s *State) SampleCount() int { return s.sampleCount }

// Reset clears accumulated state after a detected distribution shift
// (e.g. a volume resize), so confidence rebuilds from zero rather than
// inheriting stale variance estimates.
func (s *State) Reset() {
	*s = State{mountID: s.mountID}
}
