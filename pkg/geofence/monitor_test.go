package geofence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracetrip/pkg/geo"
	"tracetrip/pkg/model"
	"tracetrip/pkg/position"
	"tracetrip/pkg/store"
	"tracetrip/pkg/tracker"
)

func newMonitor(t *testing.T) *Monitor {
	t.Helper()
	src := position.NewMockSource(0, 0, 0, 0)
	return New(15*time.Second, src, nil, tracker.New())
}

func mustAdd(t *testing.T, m *Monitor, r model.Region) {
	t.Helper()
	_, err := m.AddRegion(r)
	require.NoError(t, err)
}

func drain(m *Monitor) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRegionValidation(t *testing.T) {
	m := newMonitor(t)

	_, err := m.AddRegion(model.Region{ID: "a", Radius: 0})
	assert.ErrorIs(t, err, ErrInvalidRegion)
	_, err = m.AddRegion(model.Region{ID: "a", Radius: -5})
	assert.ErrorIs(t, err, ErrInvalidRegion)
	_, err = m.AddRegion(model.Region{ID: "a", Radius: 100})
	assert.NoError(t, err)

	// A missing id is filled in, not rejected.
	r, err := m.AddRegion(model.Region{Radius: 100})
	assert.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	err = m.AddRegions([]model.Region{
		{ID: "b", Radius: 50},
		{ID: "c", Radius: 0},
	})
	assert.ErrorIs(t, err, ErrInvalidRegion)
	assert.Len(t, m.Regions(), 3, "regions before the invalid one are kept")
}

func TestEdgeTriggeredCrossings(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	mustAdd(t, m, model.Region{ID: "home", Name: "Home", Latitude: 0, Longitude: 0, Radius: 100})

	inside := geo.Point{Lat: 0, Lon: 0}
	outside := geo.Point{Lat: 0, Lon: 0.01} // roughly 1.1 km east

	m.Check(ctx, inside)
	events := drain(m)
	require.Len(t, events, 1)
	assert.Equal(t, EventEntered, events[0].Type)
	assert.Equal(t, "home", events[0].Region.ID)

	// Dwelling inside must not refire.
	m.Check(ctx, inside)
	m.Check(ctx, geo.Point{Lat: 0.0001, Lon: 0})
	assert.Empty(t, drain(m))

	m.Check(ctx, outside)
	events = drain(m)
	require.Len(t, events, 1)
	assert.Equal(t, EventExited, events[0].Type)

	m.Check(ctx, outside)
	assert.Empty(t, drain(m))

	// Round trip fires one enter and one exit again.
	m.Check(ctx, inside)
	m.Check(ctx, outside)
	events = drain(m)
	require.Len(t, events, 2)
	assert.Equal(t, EventEntered, events[0].Type)
	assert.Equal(t, EventExited, events[1].Type)
}

func TestStartingOutsideFiresNothing(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})

	m.Check(ctx, geo.Point{Lat: 1, Lon: 1})
	assert.Empty(t, drain(m))
}

func TestRemoveRegionForgetsMembership(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})

	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})
	drain(m)

	// Removing and re-adding while still inside fires a fresh enter.
	m.RemoveRegion("home")
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})

	events := drain(m)
	require.Len(t, events, 1)
	assert.Equal(t, EventEntered, events[0].Type)
}

func TestReplaceRegionKeepsMembership(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})

	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})
	drain(m)

	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 150})
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})
	assert.Empty(t, drain(m), "re-registering in place must not refire")
}

func TestClearRegions(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})
	drain(m)

	m.ClearRegions()
	assert.Empty(t, m.Regions())
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0.01})
	assert.Empty(t, drain(m))
}

func TestStartStopIdempotent(t *testing.T) {
	m := newMonitor(t)
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})

	m.Start()
	m.Start()
	assert.True(t, m.Running())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())
	assert.Len(t, m.Regions(), 1, "stop keeps regions")
}

func TestArrivalPersistence(t *testing.T) {
	ctx := context.Background()
	queue := store.NewQueue(filepath.Join(t.TempDir(), "q.db"), nil)
	defer queue.Close()
	st, err := queue.Store()
	require.NoError(t, err)

	src := position.NewMockSource(0, 0, 0, 0)
	m := New(15*time.Second, src, st, tracker.New())
	mustAdd(t, m, model.Region{ID: "dest-1", Name: "Warehouse", Latitude: 0, Longitude: 0, Radius: 100})

	m.Check(ctx, geo.Point{Lat: 0.0001, Lon: 0})
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0.01})
	m.Check(ctx, geo.Point{Lat: 0, Lon: 0})

	arrivals, err := st.RecentArrivals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, arrivals, 2, "one arrival per enter event")
	assert.Equal(t, "dest-1", arrivals[0].RegionID)
	assert.Equal(t, "Warehouse", arrivals[0].Name)
}

func TestPollDrivesCrossings(t *testing.T) {
	trk := tracker.New()
	src := position.NewMockSource(0, 0, 0, 0)
	m := New(15*time.Second, src, nil, trk)
	mustAdd(t, m, model.Region{ID: "home", Latitude: 0, Longitude: 0, Radius: 100})

	m.poll(context.Background())
	events := drain(m)
	require.Len(t, events, 1)
	assert.Equal(t, EventEntered, events[0].Type)
	assert.Equal(t, int64(1), trk.Snapshot().GeofenceEvents)

	// A failing source leaves membership untouched.
	src.SetFailing(true)
	m.poll(context.Background())
	assert.Empty(t, drain(m))
}
