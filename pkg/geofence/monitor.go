package geofence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tracetrip/pkg/geo"
	"tracetrip/pkg/model"
	"tracetrip/pkg/position"
	"tracetrip/pkg/store"
	"tracetrip/pkg/tracker"
)

var (
	// ErrInvalidRegion is returned for regions with a non-positive radius.
	ErrInvalidRegion = errors.New("invalid region")
)

// EventType classifies boundary crossings.
type EventType string

const (
	EventEntered EventType = "entered"
	EventExited  EventType = "exited"
)

// Event is one boundary crossing. Crossings are edge triggered: a dwell
// inside a region produces exactly one entered event, leaving produces
// exactly one exited event.
type Event struct {
	Type   EventType    `json:"type"`
	Region model.Region `json:"region"`
	Point  geo.Point    `json:"point"`
	Time   time.Time    `json:"time"`
}

// Monitor watches a set of circular regions against the position stream.
// It polls at a denser interval than the tracking cycle so short dwells
// near a destination are not missed.
type Monitor struct {
	interval time.Duration
	source   position.Source
	arrivals store.ArrivalStore
	tracker  *tracker.Tracker
	log      *slog.Logger

	mu      sync.Mutex
	regions map[string]model.Region
	inside  map[string]bool

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	events chan Event
}

// New creates a monitor. arrivals may be nil; enter events are then not
// persisted.
func New(interval time.Duration, source position.Source, arrivals store.ArrivalStore, trk *tracker.Tracker) *Monitor {
	return &Monitor{
		interval: interval,
		source:   source,
		arrivals: arrivals,
		tracker:  trk,
		log:      slog.With("component", "geofence"),
		regions:  make(map[string]model.Region),
		inside:   make(map[string]bool),
		events:   make(chan Event, 64),
	}
}

// Events returns the crossing event stream.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// AddRegion registers or replaces a region and returns it with its
// assigned id. A region without an id gets a generated one. Replacing a
// region keeps its membership state so no spurious crossing fires.
func (m *Monitor) AddRegion(r model.Region) (model.Region, error) {
	if r.Radius <= 0 {
		return model.Region{}, ErrInvalidRegion
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.regions[r.ID] = r
	m.mu.Unlock()
	m.log.Debug("Region registered", "id", r.ID, "radius", r.Radius)
	return r, nil
}

// AddRegions registers all regions, stopping at the first invalid one.
func (m *Monitor) AddRegions(regions []model.Region) error {
	for _, r := range regions {
		if _, err := m.AddRegion(r); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRegion unregisters a region and forgets its membership. Removing
// an unknown id is a no-op.
func (m *Monitor) RemoveRegion(id string) {
	m.mu.Lock()
	delete(m.regions, id)
	delete(m.inside, id)
	m.mu.Unlock()
}

// ClearRegions unregisters everything.
func (m *Monitor) ClearRegions() {
	m.mu.Lock()
	m.regions = make(map[string]model.Region)
	m.inside = make(map[string]bool)
	m.mu.Unlock()
}

// Regions returns the registered regions.
func (m *Monitor) Regions() []model.Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	return out
}

// Start begins polling the position source. Idempotent.
func (m *Monitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.watch(m.stop)
	m.log.Info("Geofence watch started", "interval", m.interval)
}

// Stop halts polling. Regions and membership state are kept, so a later
// Start resumes without replaying crossings. Idempotent.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.log.Info("Geofence watch stopped")
}

// Running reports whether the watch loop is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) watch(stop chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.poll(context.Background())
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	fix, err := m.source.Capture(ctx, position.AccuracyBalanced)
	if err != nil {
		// Membership is never flipped on a missing fix; the next good
		// fix resolves any crossings that happened meanwhile.
		m.log.Debug("Geofence poll without fix", "error", err)
		return
	}
	m.Check(ctx, geo.Point{Lat: fix.Lat, Lon: fix.Lon})
}

// Check evaluates the point against all regions and emits crossing
// events for membership changes. The navigation layer calls this
// directly with fixes it already has.
func (m *Monitor) Check(ctx context.Context, p geo.Point) {
	m.mu.Lock()
	var crossings []Event
	now := time.Now()
	for id, r := range m.regions {
		in := geo.WithinRadius(p, geo.Point{Lat: r.Latitude, Lon: r.Longitude}, r.Radius)
		if in == m.inside[id] {
			continue
		}
		m.inside[id] = in
		typ := EventExited
		if in {
			typ = EventEntered
		}
		crossings = append(crossings, Event{Type: typ, Region: r, Point: p, Time: now})
	}
	m.mu.Unlock()

	for _, ev := range crossings {
		m.tracker.TrackGeofenceEvent()
		m.log.Info("Geofence crossing", "type", ev.Type, "region", ev.Region.ID)
		if ev.Type == EventEntered {
			m.saveArrival(ctx, ev)
		}
		select {
		case m.events <- ev:
		default:
			m.log.Warn("Geofence event dropped, stream full", "region", ev.Region.ID)
		}
	}
}

func (m *Monitor) saveArrival(ctx context.Context, ev Event) {
	if m.arrivals == nil {
		return
	}
	err := m.arrivals.SaveArrival(ctx, &model.Arrival{
		RegionID:  ev.Region.ID,
		Name:      ev.Region.Name,
		Latitude:  ev.Point.Lat,
		Longitude: ev.Point.Lon,
	})
	if err != nil {
		m.log.Warn("Failed to record arrival", "region", ev.Region.ID, "error", err)
	}
}
