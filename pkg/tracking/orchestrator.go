package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tracetrip/pkg/config"
	"tracetrip/pkg/model"
	"tracetrip/pkg/position"
	"tracetrip/pkg/store"
	"tracetrip/pkg/tracker"
)

// Deliverer pushes a single sample to the ingestion endpoint. Send
// reports success; it never retries.
type Deliverer interface {
	Send(ctx context.Context, s *model.Sample) bool
}

// Buffer is the durable queue the orchestrator spools samples through.
// *store.Queue implements it.
type Buffer interface {
	Append(ctx context.Context, s *model.Sample) (int64, error)
	Unsynced(ctx context.Context) ([]model.Sample, error)
	MarkSynced(ctx context.Context, ids []int64) error
	PurgeSynced(ctx context.Context) error
	Counts(ctx context.Context) (model.OfflineStats, error)
	Online(ctx context.Context) bool
	Store() (store.Store, error)
}

// EventType classifies orchestrator events.
type EventType string

const (
	EventDelivered  EventType = "delivered"
	EventBuffered   EventType = "buffered"
	EventReconciled EventType = "reconciled"
	EventStarted    EventType = "started"
	EventStopped    EventType = "stopped"
)

// Event is published on the Events channel after each state change.
// Consumers that fall behind miss events; the channel never blocks a tick.
type Event struct {
	Type   EventType     `json:"type"`
	Sample *model.Sample `json:"sample,omitempty"`
	Count  int           `json:"count,omitempty"`
	Time   time.Time     `json:"time"`
}

// Orchestrator runs the periodic capture/deliver cycle. Ticks come from
// an internal ticker while running and from an optional external wake
// channel; a compare-and-swap guard ensures only one tick body executes
// at a time regardless of how many triggers fire.
type Orchestrator struct {
	interval time.Duration
	queue    Buffer
	deliver  Deliverer
	source   position.Source
	auth     position.Authorizer
	tracker  *tracker.Tracker
	log      *slog.Logger

	running atomic.Bool
	ticking atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
	wake <-chan struct{}

	events chan Event
}

// New creates an orchestrator. auth may be nil when the platform grants
// location access unconditionally (headless units).
func New(cfg *config.TrackingConfig, queue Buffer, deliver Deliverer, source position.Source, auth position.Authorizer, trk *tracker.Tracker) *Orchestrator {
	return &Orchestrator{
		interval: time.Duration(cfg.Interval),
		queue:    queue,
		deliver:  deliver,
		source:   source,
		auth:     auth,
		tracker:  trk,
		log:      slog.With("component", "tracking"),
		events:   make(chan Event, 64),
	}
}

// SetWakeSource installs an external tick trigger, typically fed by a
// platform background-fetch signal. Must be called before Start.
func (o *Orchestrator) SetWakeSource(wake <-chan struct{}) {
	o.wake = wake
}

// Events returns the orchestrator event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Enabled reports whether tracking is currently running.
func (o *Orchestrator) Enabled() bool {
	return o.running.Load()
}

// Start enables tracking: requests location permission, persists the
// enabled flag, runs an immediate tick and schedules periodic ones.
// Calling Start while already running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		o.log.Debug("Start ignored, already running")
		return nil
	}

	if o.auth != nil {
		if err := o.auth.RequestForeground(ctx); err != nil {
			o.running.Store(false)
			if errors.Is(err, position.ErrPermissionDenied) {
				return position.ErrPermissionDenied
			}
			return err
		}
		// Background denial is not fatal: tracking still works while the
		// app is foregrounded, so log and continue.
		if err := o.auth.RequestBackground(ctx); err != nil {
			o.log.Warn("Background location not granted, foreground only", "error", err)
		}
	}

	if !o.source.ServiceEnabled() {
		o.running.Store(false)
		return position.ErrUnavailable
	}

	o.setFlag(ctx, "true")

	o.mu.Lock()
	o.stop = make(chan struct{})
	stop := o.stop
	o.mu.Unlock()

	// Published before the run goroutine exists so the immediate tick's
	// delivered event cannot overtake it on the stream.
	o.log.Info("Tracking started", "interval", o.interval)
	o.publish(Event{Type: EventStarted, Time: time.Now()})

	o.wg.Add(1)
	go o.run(stop)
	return nil
}

// Stop disables tracking and persists the disabled flag. Buffered
// samples stay queued for the next reconciliation. Idempotent.
func (o *Orchestrator) Stop(ctx context.Context) {
	if !o.running.CompareAndSwap(true, false) {
		return
	}

	o.mu.Lock()
	if o.stop != nil {
		close(o.stop)
		o.stop = nil
	}
	o.mu.Unlock()
	o.wg.Wait()

	o.setFlag(ctx, "false")
	o.log.Info("Tracking stopped")
	o.publish(Event{Type: EventStopped, Time: time.Now()})
}

// RestoreIfEnabled resumes tracking when the persisted flag says it was
// running before the last shutdown.
func (o *Orchestrator) RestoreIfEnabled(ctx context.Context) error {
	st, err := o.queue.Store()
	if err != nil {
		o.log.Warn("Cannot read tracking flag, staying stopped", "error", err)
		return nil
	}
	val, ok := st.GetState(ctx, config.KeyTrackingEnabled)
	if !ok || val != "true" {
		return nil
	}
	o.log.Info("Restoring tracking from persisted state")
	err = o.Start(ctx)
	if errors.Is(err, position.ErrPermissionDenied) || errors.Is(err, position.ErrUnavailable) {
		// The precondition no longer holds; clear the stale flag so the
		// next boot does not retry a start the user has to re-approve.
		o.log.Warn("Cannot restore tracking, clearing persisted flag", "error", err)
		o.setFlag(ctx, "false")
		return nil
	}
	return err
}

// OfflineStats returns queued sample counts.
func (o *Orchestrator) OfflineStats(ctx context.Context) (model.OfflineStats, error) {
	return o.queue.Counts(ctx)
}

func (o *Orchestrator) run(stop chan struct{}) {
	defer o.wg.Done()

	ctx := context.Background()
	o.Tick(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.Tick(ctx)
		case _, ok := <-o.wake:
			if !ok {
				o.wake = nil
				continue
			}
			o.Tick(ctx)
		}
	}
}

// Tick runs one capture/deliver cycle. A tick that arrives while another
// is still executing is dropped, not queued; the guard is the only
// defense against the ticker and the wake source firing together.
func (o *Orchestrator) Tick(ctx context.Context) {
	if !o.running.Load() {
		return
	}
	if !o.source.ServiceEnabled() {
		o.log.Warn("Location service disabled, skipping tick")
		return
	}
	if !o.ticking.CompareAndSwap(false, true) {
		o.tracker.TrackTickSkipped()
		o.log.Debug("Tick skipped, previous still running")
		return
	}
	defer o.ticking.Store(false)

	// Drain the backlog first so the stream arrives in capture order.
	o.Reconcile(ctx)

	sample, ok := o.capture(ctx)
	if !ok {
		return
	}

	// A known-offline verdict goes straight to the buffer instead of
	// waiting out the send timeout; the next online tick reconciles it.
	if o.queue.Online(ctx) && o.deliver.Send(ctx, sample) {
		o.tracker.TrackDelivered()
		o.publish(Event{Type: EventDelivered, Sample: sample, Time: time.Now()})
		return
	}

	if _, err := o.queue.Append(ctx, sample); err != nil {
		// The sample is lost, the next tick produces a fresh one.
		o.log.Warn("Failed to buffer sample", "error", err)
		return
	}
	o.tracker.TrackBuffered()
	o.publish(Event{Type: EventBuffered, Sample: sample, Time: time.Now()})
}

// capture obtains a position, degrading through cheaper profiles before
// falling back to the last known fix. Returns ok=false when nothing is
// available, which skips the tick entirely.
func (o *Orchestrator) capture(ctx context.Context) (*model.Sample, bool) {
	fix, err := o.source.Capture(ctx, position.AccuracyBalanced)
	if err != nil {
		o.log.Debug("Balanced capture failed, trying low accuracy", "error", err)
		fix, err = o.source.Capture(ctx, position.AccuracyLow)
	}
	if err != nil {
		var ok bool
		fix, ok = o.source.LastKnown()
		if !ok {
			o.tracker.TrackCaptureFailure()
			o.log.Warn("No position available, skipping tick")
			return nil, false
		}
		o.log.Debug("Using last known position")
	}

	return &model.Sample{
		Latitude:  fix.Lat,
		Longitude: fix.Lon,
		Timestamp: fix.Time.UnixMilli(),
		Accuracy:  fix.Accuracy,
		Altitude:  fix.Altitude,
		Speed:     fix.Speed,
		Heading:   fix.Heading,
	}, true
}

// Reconcile drains the buffered backlog oldest first. Delivery is
// sequential; the first failure aborts the pass so ordering holds on the
// server side. Delivered rows are marked then purged.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	if !o.queue.Online(ctx) {
		return
	}

	pending, err := o.queue.Unsynced(ctx)
	if err != nil {
		o.log.Warn("Cannot read backlog", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	var synced []int64
	for i := range pending {
		if !o.deliver.Send(ctx, &pending[i]) {
			break
		}
		synced = append(synced, pending[i].ID)
	}
	if len(synced) == 0 {
		return
	}

	if err := o.queue.MarkSynced(ctx, synced); err != nil {
		o.log.Warn("Failed to mark samples synced", "error", err)
		return
	}
	if err := o.queue.PurgeSynced(ctx); err != nil {
		o.log.Warn("Failed to purge synced samples", "error", err)
	}

	o.tracker.TrackReconciled(len(synced))
	o.log.Info("Backlog reconciled", "delivered", len(synced), "remaining", len(pending)-len(synced))
	o.publish(Event{Type: EventReconciled, Count: len(synced), Time: time.Now()})
}

func (o *Orchestrator) setFlag(ctx context.Context, val string) {
	st, err := o.queue.Store()
	if err != nil {
		o.log.Warn("Cannot persist tracking flag", "error", err)
		return
	}
	if err := st.SetState(ctx, config.KeyTrackingEnabled, val); err != nil {
		o.log.Warn("Cannot persist tracking flag", "error", err)
	}
}

func (o *Orchestrator) publish(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}
