package nav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tracetrip/pkg/config"
	"tracetrip/pkg/geo"
	"tracetrip/pkg/geofence"
	"tracetrip/pkg/model"
	"tracetrip/pkg/position"
)

var (
	// ErrNoWaypoints is returned by Start when the route is empty.
	ErrNoWaypoints = errors.New("route has no waypoints")

	// ErrNotNavigating is returned when guidance is requested with no
	// active route.
	ErrNotNavigating = errors.New("not navigating")
)

const (
	arrivedDistance     = 50.0  // meters
	approachingDistance = 200.0 // meters

	trackWindow = 5
)

// Guidance is one navigation update toward the current waypoint.
type Guidance struct {
	WaypointID  string  `json:"waypoint_id"`
	Name        string  `json:"name"`
	Distance    float64 `json:"distance"` // meters
	Bearing     float64 `json:"bearing"`  // degrees true, position to waypoint
	ETASeconds  float64 `json:"eta_seconds"`
	Instruction string  `json:"instruction"`
	Arrived     bool    `json:"arrived"`

	Time time.Time `json:"time"`
}

// Navigator computes turn-by-turn style guidance along an ordered
// waypoint sequence. Progress through the sequence is monotonic: Advance
// moves forward only, there is no going back.
type Navigator struct {
	cfg     *config.NavConfig
	source  position.Source
	monitor *geofence.Monitor
	log     *slog.Logger

	mu        sync.Mutex
	waypoints []model.Waypoint
	index     int
	active    bool
	track     *geo.TrackBuffer

	running atomic.Bool
	stopc   chan struct{}
	wg      sync.WaitGroup

	updates chan Guidance
}

// New creates a navigator. source may be nil; the caller then drives
// guidance through Update itself. monitor may be nil; waypoint arrival
// regions are then not registered.
func New(cfg *config.NavConfig, source position.Source, monitor *geofence.Monitor) *Navigator {
	return &Navigator{
		cfg:     cfg,
		source:  source,
		monitor: monitor,
		log:     slog.With("component", "nav"),
		track:   geo.NewTrackBuffer(trackWindow),
		updates: make(chan Guidance, 16),
	}
}

// Updates returns the guidance stream.
func (n *Navigator) Updates() <-chan Guidance {
	return n.updates
}

// Start begins navigating the given waypoints in Order. Each waypoint
// gets an arrival region on the geofence monitor, and a guidance watch
// polls the position source at the configured interval. A Start while
// already navigating replaces the route.
func (n *Navigator) Start(waypoints []model.Waypoint) error {
	if len(waypoints) == 0 {
		return ErrNoWaypoints
	}

	route := make([]model.Waypoint, len(waypoints))
	copy(route, waypoints)
	sort.SliceStable(route, func(i, j int) bool { return route[i].Order < route[j].Order })

	n.mu.Lock()
	n.unregisterRegionsLocked()
	n.waypoints = route
	n.index = 0
	n.active = true
	n.track.Reset()
	n.registerRegionsLocked()
	n.mu.Unlock()

	n.startWatch()
	n.log.Info("Navigation started", "waypoints", len(route), "first", route[0].Name)
	return nil
}

// Stop ends navigation and removes the arrival regions. Idempotent.
func (n *Navigator) Stop() {
	n.stopWatch()
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return
	}
	n.unregisterRegionsLocked()
	n.active = false
	n.waypoints = nil
	n.index = 0
	n.track.Reset()
	n.mu.Unlock()
	n.log.Info("Navigation stopped")
}

// Active reports whether a route is being navigated.
func (n *Navigator) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Current returns the waypoint being navigated toward.
func (n *Navigator) Current() (model.Waypoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.active || n.index >= len(n.waypoints) {
		return model.Waypoint{}, false
	}
	return n.waypoints[n.index], true
}

// Advance moves to the next waypoint. It returns false when the route is
// exhausted, which also ends navigation.
func (n *Navigator) Advance() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.advanceLocked()
}

func (n *Navigator) advanceLocked() bool {
	if !n.active {
		return false
	}
	n.index++
	if n.index >= len(n.waypoints) {
		n.unregisterRegionsLocked()
		n.active = false
		n.log.Info("Route complete")
		return false
	}
	n.log.Info("Advanced to next waypoint", "name", n.waypoints[n.index].Name, "remaining", len(n.waypoints)-n.index)
	return true
}

// advanceOnArrival moves past the given waypoint if it is still the one
// being navigated toward. Progress stays monotonic: a later fix inside
// an already passed region does nothing.
func (n *Navigator) advanceOnArrival(wpID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.active || n.index >= len(n.waypoints) || n.waypoints[n.index].ID != wpID {
		return
	}
	n.log.Info("Arrival region reached", "waypoint", wpID)
	n.advanceLocked()
}

// Update computes guidance for the given fix and publishes it on the
// updates stream. The fix also feeds the geofence monitor so arrival
// detection does not wait for the next poll.
func (n *Navigator) Update(ctx context.Context, fix position.Fix) (Guidance, error) {
	n.mu.Lock()
	if !n.active || n.index >= len(n.waypoints) {
		n.mu.Unlock()
		return Guidance{}, ErrNotNavigating
	}
	wp := n.waypoints[n.index]
	n.mu.Unlock()

	pos := geo.Point{Lat: fix.Lat, Lon: fix.Lon}
	target := geo.Point{Lat: wp.Latitude, Lon: wp.Longitude}

	dist := geo.Distance(pos, target)
	brg := geo.Bearing(pos, target)

	speed := n.cfg.DefaultCruiseSpeed
	if fix.Speed != nil && *fix.Speed > 0 {
		speed = *fix.Speed
	}
	eta := dist / speed

	var course float64
	if fix.Heading != nil {
		course = *fix.Heading
		n.track.Push(pos, course)
	} else {
		course = n.track.Push(pos, brg)
	}

	g := Guidance{
		WaypointID:  wp.ID,
		Name:        wp.Name,
		Distance:    dist,
		Bearing:     brg,
		ETASeconds:  eta,
		Instruction: instruction(wp.Name, dist, brg, course),
		Arrived:     dist < arrivedDistance,
		Time:        time.Now(),
	}

	if n.monitor != nil {
		n.monitor.Check(ctx, pos)
	}

	select {
	case n.updates <- g:
	default:
	}

	if geo.WithinRadius(pos, target, float64(n.cfg.ArrivalRadius)) {
		n.advanceOnArrival(wp.ID)
	}
	return g, nil
}

func (n *Navigator) startWatch() {
	if n.source == nil || !n.running.CompareAndSwap(false, true) {
		return
	}
	n.stopc = make(chan struct{})
	n.wg.Add(1)
	go n.watch(n.stopc)
}

func (n *Navigator) stopWatch() {
	if !n.running.CompareAndSwap(true, false) {
		return
	}
	close(n.stopc)
	n.wg.Wait()
}

func (n *Navigator) watch(stop chan struct{}) {
	defer n.wg.Done()

	interval := time.Duration(n.cfg.WatchInterval)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.poll(context.Background())
		}
	}
}

func (n *Navigator) poll(ctx context.Context) {
	if !n.Active() {
		return
	}
	fix, err := n.source.Capture(ctx, position.AccuracyBalanced)
	if err != nil {
		n.log.Debug("Guidance poll without fix", "error", err)
		return
	}
	if _, err := n.Update(ctx, fix); err != nil && !errors.Is(err, ErrNotNavigating) {
		n.log.Warn("Guidance update failed", "error", err)
	}
}

func (n *Navigator) registerRegionsLocked() {
	if n.monitor == nil {
		return
	}
	for _, wp := range n.waypoints {
		_, err := n.monitor.AddRegion(model.Region{
			ID:        regionID(wp),
			Latitude:  wp.Latitude,
			Longitude: wp.Longitude,
			Radius:    float64(n.cfg.ArrivalRadius),
			Name:      wp.Name,
			AddressID: wp.ID,
		})
		if err != nil {
			n.log.Warn("Failed to register arrival region", "waypoint", wp.ID, "error", err)
		}
	}
}

func (n *Navigator) unregisterRegionsLocked() {
	if n.monitor == nil {
		return
	}
	for _, wp := range n.waypoints {
		n.monitor.RemoveRegion(regionID(wp))
	}
}

func regionID(wp model.Waypoint) string {
	return "nav-" + wp.ID
}

// compassSectors in 45 degree steps, centered on the cardinal and
// intercardinal directions.
var compassSectors = [8]string{
	"north", "northeast", "east", "southeast",
	"south", "southwest", "west", "northwest",
}

// CompassSector maps a bearing to one of the eight compass names.
func CompassSector(bearing float64) string {
	idx := (int(math.Floor(bearing/45.0+0.5))%8 + 8) % 8
	return compassSectors[idx]
}

// instruction renders the human readable guidance line.
func instruction(name string, dist, bearing, course float64) string {
	switch {
	case dist < arrivedDistance:
		return fmt.Sprintf("You have arrived at %s", name)
	case dist < approachingDistance:
		return fmt.Sprintf("Approaching %s, %s ahead", name, formatDistance(dist))
	}

	sector := CompassSector(bearing)
	turn := turnHint(bearing, course)
	if turn != "" {
		return fmt.Sprintf("%s, then head %s for %s to %s", turn, sector, formatDistance(dist), name)
	}
	return fmt.Sprintf("Head %s for %s to %s", sector, formatDistance(dist), name)
}

// turnHint compares the course over ground with the bearing to target.
// Within 30 degrees the traveler is already pointed the right way.
func turnHint(bearing, course float64) string {
	diff := geo.NormalizeAngle(bearing - course)
	switch {
	case math.Abs(diff) <= 30:
		return ""
	case diff > 0:
		return "Turn right"
	default:
		return "Turn left"
	}
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
