package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RequestMetric records metadata for a single backend request.
type RequestMetric struct {
	Method    string
	Path      string
	Status    int
	LatencyMS int64
	Timestamp time.Time
}

// Store handles persistence of request metrics to the shared local store.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordRequest implements the api.Recorder hook.
func (s *Store) RecordRequest(method, path string, status int, latency time.Duration) {
	// Metrics must never fail a request; errors are dropped.
	_ = s.Record(RequestMetric{
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
	})
}

// Record saves a metric row.
func (s *Store) Record(m RequestMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO request_metrics (method, path, status, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		m.Method, m.Path, m.Status, m.LatencyMS, ts)
	if err != nil {
		return fmt.Errorf("failed to record request metric: %w", err)
	}
	return nil
}

// Recent returns the most recent metric rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RequestMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT method, path, status, latency_ms, timestamp
		FROM request_metrics ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list request metrics: %w", err)
	}
	defer rows.Close()

	var metrics []RequestMetric
	for rows.Next() {
		var m RequestMetric
		if err := rows.Scan(&m.Method, &m.Path, &m.Status, &m.LatencyMS, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan request metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
