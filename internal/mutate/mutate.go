// Package mutate is the write path: one generic optimistic-mutation
// primitive used by every domain store. A mutation applies its optimistic
// projection to the local cache, attempts the remote write, then commits the
// server payload or rolls the cache back to the exact previous bytes.
//
// Mutations on the same key are serialized through a per-key queue, so
// rapid repeated toggles resolve in a deterministic last-write-wins order
// instead of racing.
package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"grovli-client/internal/api"
	"grovli-client/internal/cache"
	"grovli-client/internal/localstore"
	"grovli-client/internal/query"
)

// ErrQueued is returned when a write was stored for later replay instead of
// being sent, because the client is suspended (the hidden-tab case).
var ErrQueued = errors.New("write queued for replay")

// Status of the pending mutation for a key.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// Request describes one mutation.
type Request struct {
	// Key is the read-path cache key this write projects onto. Empty for
	// writes with no cached projection.
	Key    string
	Method string
	Path   string
	Body   any

	// Optimistic produces the locally projected value from the previous
	// cached value. Nil disables the optimistic update.
	Optimistic func(prev json.RawMessage) json.RawMessage

	// InvalidateKeys are read keys revalidated lazily after a successful
	// write.
	InvalidateKeys []string

	// QueueKind names the pending-write queue used while suspended. A
	// mutation without a QueueKind fails instead of queueing.
	QueueKind string
}

type queuedWrite struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Mutator executes mutations.
type Mutator struct {
	api     *api.Client
	cache   *cache.Cache
	queries *query.Client
	store   *localstore.Store
	logger  *slog.Logger

	suspended atomic.Bool

	mu     sync.Mutex
	keys   map[string]*sync.Mutex
	status map[string]Status
}

// NewMutator creates the write path. store may be nil when queueing is not
// needed (tests).
func NewMutator(a *api.Client, c *cache.Cache, q *query.Client, store *localstore.Store, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		api:     a,
		cache:   c,
		queries: q,
		store:   store,
		logger:  logger,
		keys:    make(map[string]*sync.Mutex),
		status:  make(map[string]Status),
	}
}

// Suspend toggles the suspended state. While suspended, queueable writes go
// to the pending queue instead of the network.
func (m *Mutator) Suspend(v bool) { m.suspended.Store(v) }

// Status returns the last observed mutation status for key.
func (m *Mutator) Status(key string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[key]
	return s, ok
}

// Do executes the mutation and returns the server payload.
func (m *Mutator) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if m.suspended.Load() && req.QueueKind != "" {
		if err := m.enqueue(ctx, req); err != nil {
			return nil, err
		}
		return nil, ErrQueued
	}

	unlock := m.lockKey(req.Key)
	defer unlock()

	m.setStatus(req.Key, StatusPending)

	prev, hadPrev := json.RawMessage(nil), false
	if req.Key != "" {
		prev, hadPrev = m.cache.Get(req.Key)
	}

	// The optimistic projection is visible before the network call is
	// dispatched.
	if req.Optimistic != nil && req.Key != "" {
		m.cache.Set(req.Key, req.Optimistic(prev))
	}

	m.setStatus(req.Key, StatusSyncing)
	payload, err := m.api.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		m.rollback(req.Key, prev, hadPrev)
		m.setStatus(req.Key, StatusError)

		// A timed-out queueable write is preserved for replay rather than
		// lost.
		if errors.Is(err, api.ErrTimeout) && req.QueueKind != "" {
			if qerr := m.enqueue(ctx, req); qerr == nil {
				return nil, fmt.Errorf("%w: %w", ErrQueued, err)
			}
		}
		return nil, err
	}

	if req.Key != "" && len(payload) > 0 {
		m.cache.Set(req.Key, payload)
	}
	for _, key := range req.InvalidateKeys {
		m.queries.Invalidate(key)
	}
	m.setStatus(req.Key, StatusSynced)
	return payload, nil
}

// Post is a convenience wrapper for POST mutations.
func (m *Mutator) Post(ctx context.Context, path string, body any, req Request) (json.RawMessage, error) {
	req.Method, req.Path, req.Body = "POST", path, body
	return m.Do(ctx, req)
}

// Put is a convenience wrapper for PUT mutations.
func (m *Mutator) Put(ctx context.Context, path string, body any, req Request) (json.RawMessage, error) {
	req.Method, req.Path, req.Body = "PUT", path, body
	return m.Do(ctx, req)
}

// Delete is a convenience wrapper for DELETE mutations.
func (m *Mutator) Delete(ctx context.Context, path string, req Request) (json.RawMessage, error) {
	req.Method, req.Path = "DELETE", path
	return m.Do(ctx, req)
}

// Flush replays every queued write of the given kind. Writes that fail with
// a retryable error are re-queued; permanent failures are dropped and
// logged.
func (m *Mutator) Flush(ctx context.Context, kind string) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	writes, err := m.store.TakePending(ctx, kind)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, w := range writes {
		var qw queuedWrite
		if err := json.Unmarshal(w.Payload, &qw); err != nil {
			m.logger.Warn("dropping corrupt queued write", "kind", kind, "err", err)
			continue
		}

		var body any
		if len(qw.Body) > 0 {
			body = qw.Body
		}
		if _, err := m.api.Do(ctx, qw.Method, qw.Path, body); err != nil {
			if api.IsRetryable(err) {
				if qerr := m.store.AppendPending(ctx, kind, w.Payload); qerr != nil {
					m.logger.Warn("failed to re-queue write", "kind", kind, "err", qerr)
				}
				return replayed, err
			}
			m.logger.Warn("dropping permanently failed queued write", "kind", kind, "path", qw.Path, "err", err)
			continue
		}
		replayed++
	}
	return replayed, nil
}

func (m *Mutator) enqueue(ctx context.Context, req Request) error {
	if m.store == nil {
		return fmt.Errorf("no pending queue available")
	}
	var body json.RawMessage
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode queued write: %w", err)
		}
		body = data
	}
	payload, err := json.Marshal(queuedWrite{Method: req.Method, Path: req.Path, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode queued write: %w", err)
	}
	return m.store.AppendPending(ctx, req.QueueKind, payload)
}

func (m *Mutator) rollback(key string, prev json.RawMessage, hadPrev bool) {
	if key == "" {
		return
	}
	if hadPrev {
		m.cache.Set(key, prev)
	} else {
		m.cache.Clear(key)
	}
}

func (m *Mutator) lockKey(key string) func() {
	// Keyless mutations have no projection to protect and do not
	// serialize against each other.
	if key == "" {
		return func() {}
	}

	m.mu.Lock()
	lock, ok := m.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		m.keys[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *Mutator) setStatus(key string, s Status) {
	if key == "" {
		return
	}
	m.mu.Lock()
	m.status[key] = s
	m.mu.Unlock()
}
