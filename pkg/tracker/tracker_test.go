package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()

	tr.TrackDelivered()
	tr.TrackDelivered()
	tr.TrackBuffered()
	tr.TrackReconciled(3)
	tr.TrackDeliveryFailure()
	tr.TrackCaptureFailure()
	tr.TrackTickSkipped()
	tr.TrackGeofenceEvent()

	s := tr.Snapshot()
	if s.Delivered != 2 || s.Buffered != 1 || s.Reconciled != 3 {
		t.Errorf("Snapshot delivery counters wrong: %+v", s)
	}
	if s.DeliveryFailures != 1 || s.CaptureFailures != 1 || s.TicksSkipped != 1 || s.GeofenceEvents != 1 {
		t.Errorf("Snapshot failure counters wrong: %+v", s)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackDelivered()
			tr.TrackReconciled(2)
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	if s.Delivered != 50 {
		t.Errorf("Delivered = %d, want 50", s.Delivered)
	}
	if s.Reconciled != 100 {
		t.Errorf("Reconciled = %d, want 100", s.Reconciled)
	}
}
