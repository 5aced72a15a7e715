package tracker

import (
	"sync/atomic"
)

// Tracker tracks usage statistics for the tracking subsystem.
// Fields are accessed atomically; one shared instance is wired at startup.
type Tracker struct {
	delivered        int64
	buffered         int64
	reconciled       int64
	deliveryFailures int64
	captureFailures  int64
	ticksSkipped     int64
	geofenceEvents   int64
}

// Snapshot is a copy of the current counters.
type Snapshot struct {
	Delivered        int64 `json:"delivered"`
	Buffered         int64 `json:"buffered"`
	Reconciled       int64 `json:"reconciled"`
	DeliveryFailures int64 `json:"delivery_failures"`
	CaptureFailures  int64 `json:"capture_failures"`
	TicksSkipped     int64 `json:"ticks_skipped"`
	GeofenceEvents   int64 `json:"geofence_events"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{}
}

// TrackDelivered increments the immediate-delivery counter.
func (t *Tracker) TrackDelivered() {
	atomic.AddInt64(&t.delivered, 1)
}

// TrackBuffered increments the queued-for-later counter.
func (t *Tracker) TrackBuffered() {
	atomic.AddInt64(&t.buffered, 1)
}

// TrackReconciled adds n delivered-by-reconciliation samples.
func (t *Tracker) TrackReconciled(n int) {
	atomic.AddInt64(&t.reconciled, int64(n))
}

func (t *Tracker) TrackDeliveryFailure() {
	atomic.AddInt64(&t.deliveryFailures, 1)
}

func (t *Tracker) TrackCaptureFailure() {
	atomic.AddInt64(&t.captureFailures, 1)
}

func (t *Tracker) TrackTickSkipped() {
	atomic.AddInt64(&t.ticksSkipped, 1)
}

func (t *Tracker) TrackGeofenceEvent() {
	atomic.AddInt64(&t.geofenceEvents, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Delivered:        atomic.LoadInt64(&t.delivered),
		Buffered:         atomic.LoadInt64(&t.buffered),
		Reconciled:       atomic.LoadInt64(&t.reconciled),
		DeliveryFailures: atomic.LoadInt64(&t.deliveryFailures),
		CaptureFailures:  atomic.LoadInt64(&t.captureFailures),
		TicksSkipped:     atomic.LoadInt64(&t.ticksSkipped),
		GeofenceEvents:   atomic.LoadInt64(&t.geofenceEvents),
	}
}
