package forecaster

import (
	"sync"

	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
)

// Manager owns one State per mount and is the forecaster worker's entry
// point each tick. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	series   map[string]*State
	horizons Horizons
	logger   *zap.Logger
}

// NewManager constructs a Manager with the given danger-class horizons.
func NewManager(horizons Horizons, logger *zap.Logger) *Manager {
	return &Manager{
		series:   make(map[string]*State),
		horizons: horizons,
		logger:   logger,
	}
}

// Observe folds one mount's pressure sample into its series, creating the
// series on first observation, and returns the resulting projection.
func (m *Manager) Observe(sample model.PressureSample) model.Projection {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[sample.MountID]
	if !ok {
		s = NewState(sample.MountID)
		m.series[sample.MountID] = s
	}
	proj := s.Observe(sample, m.horizons)

	if !proj.Actionable {
		m.logger.Debug("projection below confidence floor",
			zap.String("mount_id", sample.MountID),
			zap.Float64("confidence", proj.Confidence))
	}
	return proj
}

// Rate returns the current signed EWMA rate for a mount, or 0 if unknown.
func (m *Manager) Rate(mountID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[mountID]
	if !ok {
		return 0
	}
	return s.Rate()
}

// Trend returns the current trend classification for a mount.
func (m *Manager) Trend(mountID string) model.Trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[mountID]
	if !ok {
		return model.Stable
	}
	return s.Trend()
}

// Reset clears one mount's series, e.g. after detecting a volume resize.
func (m *Manager) Reset(mountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.series[mountID]; ok {
		s.Reset()
	}
}
