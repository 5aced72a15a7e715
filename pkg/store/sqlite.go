package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tracetrip/pkg/db"
	"tracetrip/pkg/model"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Samples ---

func (s *SQLiteStore) Append(ctx context.Context, sample *model.Sample) (int64, error) {
	query := `INSERT INTO location_samples (
		latitude, longitude, timestamp, accuracy, altitude, speed, heading, synced, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`

	createdAt := sample.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, query,
		sample.Latitude, sample.Longitude, sample.Timestamp,
		nullFloat(sample.Accuracy), nullFloat(sample.Altitude),
		nullFloat(sample.Speed), nullFloat(sample.Heading),
		createdAt,
	)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	sample.ID = id
	sample.CreatedAt = createdAt
	return id, nil
}

func (s *SQLiteStore) Unsynced(ctx context.Context) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, timestamp, accuracy, altitude, speed, heading, synced, created_at
		 FROM location_samples WHERE synced = 0 ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Sample
	for rows.Next() {
		var sm model.Sample
		var accuracy, altitude, speed, heading sql.NullFloat64
		err := rows.Scan(
			&sm.ID, &sm.Latitude, &sm.Longitude, &sm.Timestamp,
			&accuracy, &altitude, &speed, &heading,
			&sm.Synced, &sm.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sm.Accuracy = floatPtr(accuracy)
		sm.Altitude = floatPtr(altitude)
		sm.Speed = floatPtr(speed)
		sm.Heading = floatPtr(heading)
		results = append(results, sm)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE location_samples SET synced = 1 WHERE id IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) PurgeSynced(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM location_samples WHERE synced = 1")
	return err
}

func (s *SQLiteStore) Counts(ctx context.Context) (model.OfflineStats, error) {
	var stats model.OfflineStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)
		 FROM location_samples`).Scan(&stats.Total, &stats.Unsynced)
	if err != nil {
		return model.OfflineStats{}, err
	}
	return stats, nil
}

// --- Arrivals ---

func (s *SQLiteStore) SaveArrival(ctx context.Context, a *model.Arrival) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO arrivals (region_id, name, latitude, longitude, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, a.RegionID, a.Name, a.Latitude, a.Longitude, createdAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		a.ID = id
	}
	return err
}

func (s *SQLiteStore) RecentArrivals(ctx context.Context, limit int) ([]model.Arrival, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region_id, name, latitude, longitude, created_at
		 FROM arrivals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Arrival
	for rows.Next() {
		var a model.Arrival
		if err := rows.Scan(&a.ID, &a.RegionID, &a.Name, &a.Latitude, &a.Longitude, &a.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
