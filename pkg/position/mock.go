package position

import (
	"context"
	"sync"
	"time"

	"tracetrip/pkg/geo"
	"tracetrip/pkg/model"
)

// MockSource simulates a device moving at constant speed along a fixed
// heading. It is the development and test stand-in for real hardware.
type MockSource struct {
	lastKnownCache

	mu       sync.Mutex
	start    geo.Point
	speedMps float64
	heading  float64
	started  time.Time
	now      func() time.Time
	enabled  bool
	failing  bool
}

// NewMockSource creates a simulated source starting at (lat, lon).
func NewMockSource(lat, lon, speedMps, headingDeg float64) *MockSource {
	m := &MockSource{
		start:    geo.Point{Lat: lat, Lon: lon},
		speedMps: speedMps,
		heading:  headingDeg,
		now:      time.Now,
		enabled:  true,
	}
	m.started = m.now()
	return m
}

// SetClock replaces the time source, for deterministic tests.
func (m *MockSource) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.started = now()
	m.mu.Unlock()
}

// SetServiceEnabled toggles the simulated location service.
func (m *MockSource) SetServiceEnabled(v bool) {
	m.mu.Lock()
	m.enabled = v
	m.mu.Unlock()
}

// SetFailing makes every Capture return ErrUnavailable, simulating a GPS
// outage while keeping the last known fix.
func (m *MockSource) SetFailing(v bool) {
	m.mu.Lock()
	m.failing = v
	m.mu.Unlock()
}

func (m *MockSource) Capture(ctx context.Context, p Profile) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.failing {
		return Fix{}, ErrUnavailable
	}

	elapsed := m.now().Sub(m.started).Seconds()
	pos := geo.DestinationPoint(m.start, m.speedMps*elapsed, m.heading)

	accuracy := 10.0
	if p == AccuracyLow {
		accuracy = 100.0
	}

	f := Fix{
		Lat:      pos.Lat,
		Lon:      pos.Lon,
		Time:     m.now(),
		Accuracy: model.Float64(accuracy),
		Speed:    model.Float64(m.speedMps),
		Heading:  model.Float64(m.heading),
	}
	m.remember(f)
	return f, nil
}

func (m *MockSource) ServiceEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *MockSource) Close() error {
	return nil
}

// StaticAuthorizer is an Authorizer with fixed grants, for development
// builds and tests.
type StaticAuthorizer struct {
	Foreground bool
	Background bool
}

func (a *StaticAuthorizer) RequestForeground(ctx context.Context) error {
	if !a.Foreground {
		return ErrPermissionDenied
	}
	return nil
}

func (a *StaticAuthorizer) RequestBackground(ctx context.Context) error {
	if !a.Background {
		return ErrPermissionDenied
	}
	return nil
}

func (a *StaticAuthorizer) ForegroundGranted() bool {
	return a.Foreground
}
