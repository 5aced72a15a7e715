package store

import (
	"context"

	"tracetrip/pkg/model"
)

// SampleStore persists location samples awaiting delivery.
type SampleStore interface {
	// Append inserts a sample with synced=false and returns the assigned id.
	Append(ctx context.Context, s *model.Sample) (int64, error)
	// Unsynced returns all unsynced samples ordered by timestamp ascending.
	Unsynced(ctx context.Context) ([]model.Sample, error)
	// MarkSynced sets synced=true for exactly the given ids. Ids that no
	// longer exist are skipped silently.
	MarkSynced(ctx context.Context, ids []int64) error
	// PurgeSynced deletes all synced rows. Unsynced rows are never touched.
	PurgeSynced(ctx context.Context) error
	// Counts returns total and unsynced row counts.
	Counts(ctx context.Context) (model.OfflineStats, error)
}

// StateStore persists small key/value control flags.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// ArrivalStore records geofence arrival events durably.
type ArrivalStore interface {
	SaveArrival(ctx context.Context, a *model.Arrival) error
	RecentArrivals(ctx context.Context, limit int) ([]model.Arrival, error)
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	SampleStore
	StateStore
	ArrivalStore

	// Close closes the store connection.
	Close() error
}
