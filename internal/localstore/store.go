// Package localstore is the durable local key-value store shared by every
// component of the client, the analog of the browser's localStorage. It also
// carries the pending-write queue and a polling change watcher that stands in
// for the storage-change event used for cross-tab signaling.
package localstore

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite" // Pure Go sqlite driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store provides the shared local database.
type Store struct {
	db *sql.DB
}

// Open initializes the sqlite store at path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}
	// The store is shared across processes; serialize access on one
	// connection to keep sqlite's locking simple.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func runMigrations(path string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite://%s", path))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for sibling packages that keep their
// own tables in the shared store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes the value under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Merge applies fn to the current value under key inside one transaction.
// Another tab may write the same key concurrently, so writers re-read and
// merge sub-fields instead of blindly overwriting the whole record.
func (s *Store) Merge(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer tx.Rollback()

	var old []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read key %s: %w", key, err)
	}

	merged, err := fn(old)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, merged, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return tx.Commit()
}

// Watch polls key and delivers the new value whenever it changes. It is the
// cross-tab signaling primitive: another process writing the shared store is
// observed the way another tab's storage event would be. The channel closes
// when ctx is done.
func (s *Store) Watch(ctx context.Context, key string, every time.Duration) <-chan []byte {
	ch := make(chan []byte, 1)

	go func() {
		defer close(ch)

		var lastStamp int64
		var lastValue []byte
		// Seed with the current state so only subsequent writes notify.
		// A missing row is fine, the zero stamp stands for "no value".
		_ = s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM kv WHERE key = ?`, key).Scan(&lastValue, &lastStamp)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var value []byte
			var stamp int64
			err := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM kv WHERE key = ?`, key).Scan(&value, &stamp)
			if err != nil {
				continue
			}
			if stamp == lastStamp && bytes.Equal(value, lastValue) {
				continue
			}
			lastStamp, lastValue = stamp, value

			select {
			case ch <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
