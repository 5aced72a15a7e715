package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tracetrip/pkg/db"
	"tracetrip/pkg/model"
	"tracetrip/pkg/netcheck"
)

var (
	// ErrStorageUnavailable is returned when the underlying database cannot
	// be opened. The orchestrator treats this as non-fatal and continues in
	// send-only mode.
	ErrStorageUnavailable = errors.New("sample store unavailable")

	// ErrStorageWrite is returned when an append fails. The caller must not
	// assume the sample was retained.
	ErrStorageWrite = errors.New("sample store write failed")
)

// Queue is the durable sample queue. It opens its database lazily: the
// first operation triggers initialization, and concurrent callers block on
// the same single attempt. After a Reset the next operation rebuilds the
// store from scratch.
type Queue struct {
	path   string
	oracle netcheck.Oracle

	mu    sync.Mutex
	conn  *db.DB
	store *SQLiteStore
}

// NewQueue creates a queue backed by the sqlite file at path.
func NewQueue(path string, oracle netcheck.Oracle) *Queue {
	return &Queue{path: path, oracle: oracle}
}

// Initialize opens the store if it is not open yet. It is idempotent and
// safe to call concurrently.
func (q *Queue) Initialize() error {
	_, err := q.ensure()
	return err
}

// ensure returns the open store, initializing it if needed. The mutex
// serializes the attempt so concurrent callers all await the same one.
func (q *Queue) ensure() (*SQLiteStore, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		return q.store, nil
	}

	conn, err := db.Init(q.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	q.conn = conn
	q.store = NewSQLiteStore(conn)
	slog.Info("Sample queue initialized", "path", q.path)
	return q.store, nil
}

// Append inserts a sample with synced=false and returns the assigned id.
func (q *Queue) Append(ctx context.Context, s *model.Sample) (int64, error) {
	st, err := q.ensure()
	if err != nil {
		return 0, err
	}
	id, err := st.Append(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return id, nil
}

// Unsynced returns all unsynced samples, oldest first.
func (q *Queue) Unsynced(ctx context.Context) ([]model.Sample, error) {
	st, err := q.ensure()
	if err != nil {
		return nil, err
	}
	return st.Unsynced(ctx)
}

// MarkSynced flags the given ids as delivered. Empty input is a no-op.
func (q *Queue) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	st, err := q.ensure()
	if err != nil {
		return err
	}
	return st.MarkSynced(ctx, ids)
}

// PurgeSynced deletes all delivered rows.
func (q *Queue) PurgeSynced(ctx context.Context) error {
	st, err := q.ensure()
	if err != nil {
		return err
	}
	return st.PurgeSynced(ctx)
}

// Counts returns total and unsynced sample counts.
func (q *Queue) Counts(ctx context.Context) (model.OfflineStats, error) {
	st, err := q.ensure()
	if err != nil {
		return model.OfflineStats{}, err
	}
	return st.Counts(ctx)
}

// Online delegates to the connectivity oracle. Kept on the queue because
// the reconciler consults connectivity and pending samples together.
func (q *Queue) Online(ctx context.Context) bool {
	if q.oracle == nil {
		return false
	}
	return q.oracle.Online(ctx)
}

// Store returns the underlying store for non-queue access (state flags,
// arrivals), initializing it if needed.
func (q *Queue) Store() (Store, error) {
	return q.ensure()
}

// Reset closes and deletes the store. This is a last-resort recovery path;
// data loss is expected. The next operation rebuilds from scratch.
func (q *Queue) Reset() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			slog.Warn("Failed to close sample queue during reset", "error", err)
		}
		q.conn = nil
		q.store = nil
	}

	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove store file: %w", err)
	}
	slog.Warn("Sample queue reset", "path", q.path)
	return nil
}

// Close closes the store connection if open.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn == nil {
		return nil
	}
	err := q.conn.Close()
	q.conn = nil
	q.store = nil
	return err
}
