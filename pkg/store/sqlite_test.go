package store

import (
	"context"
	"path/filepath"
	"testing"

	"tracetrip/pkg/db"
	"tracetrip/pkg/model"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	// Init DB
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testSamples(t, ctx, store)
	testMarkSynced(t, ctx, store)
	testArrivals(t, ctx, store)
	testState(t, ctx, store)
}

func testSamples(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Samples", func(t *testing.T) {
		s1 := &model.Sample{Latitude: -23.5, Longitude: -46.6, Timestamp: 1000, Accuracy: model.Float64(12.5)}
		s2 := &model.Sample{Latitude: -23.6, Longitude: -46.7, Timestamp: 2000}

		id1, err := store.Append(ctx, s1)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		id2, err := store.Append(ctx, s2)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id2 <= id1 {
			t.Errorf("Expected monotonically increasing ids, got %d then %d", id1, id2)
		}

		unsynced, err := store.Unsynced(ctx)
		if err != nil {
			t.Fatalf("Unsynced failed: %v", err)
		}
		if len(unsynced) != 2 {
			t.Fatalf("Expected 2 unsynced samples, got %d", len(unsynced))
		}
		if unsynced[0].Timestamp != 1000 || unsynced[1].Timestamp != 2000 {
			t.Errorf("Unsynced not ordered by timestamp: %d, %d", unsynced[0].Timestamp, unsynced[1].Timestamp)
		}
		if unsynced[0].Accuracy == nil || *unsynced[0].Accuracy != 12.5 {
			t.Errorf("Accuracy not persisted: %v", unsynced[0].Accuracy)
		}
		if unsynced[1].Accuracy != nil {
			t.Errorf("Expected nil accuracy, got %v", *unsynced[1].Accuracy)
		}
	})
}

func testMarkSynced(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("MarkSynced", func(t *testing.T) {
		unsynced, err := store.Unsynced(ctx)
		if err != nil {
			t.Fatalf("Unsynced failed: %v", err)
		}
		before := len(unsynced)
		if before == 0 {
			t.Fatal("Expected unsynced samples from previous subtest")
		}

		// Mark the oldest one synced, including an id that does not exist
		if err := store.MarkSynced(ctx, []int64{unsynced[0].ID, 999999}); err != nil {
			t.Fatalf("MarkSynced failed: %v", err)
		}

		stats, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if stats.Unsynced != before-1 {
			t.Errorf("Expected %d unsynced after MarkSynced, got %d", before-1, stats.Unsynced)
		}

		if err := store.PurgeSynced(ctx); err != nil {
			t.Fatalf("PurgeSynced failed: %v", err)
		}
		stats, err = store.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if stats.Total != stats.Unsynced {
			t.Errorf("Purge left synced rows behind: total=%d unsynced=%d", stats.Total, stats.Unsynced)
		}

		// The purged id must never come back
		after, err := store.Unsynced(ctx)
		if err != nil {
			t.Fatalf("Unsynced failed: %v", err)
		}
		for _, sm := range after {
			if sm.ID == unsynced[0].ID {
				t.Errorf("Purged id %d still present", sm.ID)
			}
		}

		// Empty id list is a no-op
		if err := store.MarkSynced(ctx, nil); err != nil {
			t.Errorf("MarkSynced(nil) failed: %v", err)
		}
	})
}

func testArrivals(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Arrivals", func(t *testing.T) {
		a := &model.Arrival{RegionID: "wp-1", Name: "Depot", Latitude: -23.5, Longitude: -46.6}
		if err := store.SaveArrival(ctx, a); err != nil {
			t.Fatalf("SaveArrival failed: %v", err)
		}
		if a.ID == 0 {
			t.Error("SaveArrival did not assign an id")
		}

		recent, err := store.RecentArrivals(ctx, 10)
		if err != nil {
			t.Fatalf("RecentArrivals failed: %v", err)
		}
		if len(recent) != 1 || recent[0].RegionID != "wp-1" {
			t.Errorf("RecentArrivals mismatch: %+v", recent)
		}
	})
}

func testState(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("State", func(t *testing.T) {
		if _, found := store.GetState(ctx, "tracking_enabled"); found {
			t.Error("Expected no state initially")
		}

		if err := store.SetState(ctx, "tracking_enabled", "true"); err != nil {
			t.Fatalf("SetState failed: %v", err)
		}
		val, found := store.GetState(ctx, "tracking_enabled")
		if !found || val != "true" {
			t.Errorf("GetState = (%q, %v), want (true, true)", val, found)
		}

		if err := store.SetState(ctx, "tracking_enabled", "false"); err != nil {
			t.Fatalf("SetState overwrite failed: %v", err)
		}
		val, _ = store.GetState(ctx, "tracking_enabled")
		if val != "false" {
			t.Errorf("GetState after overwrite = %q, want false", val)
		}

		if err := store.DeleteState(ctx, "tracking_enabled"); err != nil {
			t.Fatalf("DeleteState failed: %v", err)
		}
		if _, found := store.GetState(ctx, "tracking_enabled"); found {
			t.Error("State still present after delete")
		}
	})
}
