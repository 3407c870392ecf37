package localstore

import (
	"context"
	"fmt"
	"time"
)

// PendingWrite is one queued mutation awaiting replay.
type PendingWrite struct {
	ID        int64
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// AppendPending queues a write for later replay, keyed by kind
// (e.g. "meal-completion").
func (s *Store) AppendPending(ctx context.Context, kind string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_writes (kind, payload, created_at) VALUES (?, ?, ?)`,
		kind, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to queue pending write: %w", err)
	}
	return nil
}

// TakePending removes and returns all queued writes of the given kind in
// insertion order.
func (s *Store) TakePending(ctx context.Context, kind string) ([]PendingWrite, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin take: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, payload, created_at FROM pending_writes WHERE kind = ? ORDER BY id ASC`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending writes: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		if err := rows.Scan(&w.ID, &w.Kind, &w.Payload, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending write: %w", err)
		}
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending writes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE kind = ?`, kind); err != nil {
		return nil, fmt.Errorf("failed to drain pending writes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit take: %w", err)
	}
	return writes, nil
}
