// Package query is the cache-aware read path. A Lookup serves fresh-enough
// cached data, deduplicates concurrent identical requests into a single
// network call, retries transient failures, and feeds subscribers whenever a
// key is revalidated.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"grovli-client/internal/api"
	"grovli-client/internal/cache"
)

// Fetcher loads the payload for a key from the backend.
type Fetcher func(ctx context.Context, key string) (json.RawMessage, error)

// Options holds the read-path tuning values.
type Options struct {
	// DedupeInterval: a settled result younger than this is served without
	// a new request.
	DedupeInterval time.Duration
	// RetryCount is the number of retries after the first failed attempt.
	RetryCount int
	// RetryInterval is the delay between retries.
	RetryInterval time.Duration
}

// Status describes the per-key state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
	StatusRevalidating
)

// Result is delivered to subscribers after every settled fetch.
type Result struct {
	Key  string
	Data json.RawMessage
	Err  error
}

type flight struct {
	done chan struct{}
	data json.RawMessage
	err  error
}

type settled struct {
	data json.RawMessage
	err  error
	at   time.Time
}

// Client coordinates reads for all keys.
type Client struct {
	cache  *cache.Cache
	fetch  Fetcher
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	flights map[string]*flight
	last    map[string]*settled
	subs    map[string][]chan Result
}

// NewClient creates the read path over the given cache and fetcher.
func NewClient(c *cache.Cache, fetch Fetcher, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cache:   c,
		fetch:   fetch,
		opts:    opts,
		logger:  logger,
		flights: make(map[string]*flight),
		last:    make(map[string]*settled),
		subs:    make(map[string][]chan Result),
	}
}

// Lookup returns the payload for key, from cache when valid, otherwise from
// the backend. Concurrent lookups for the same key share one request, and a
// result settled within the dedupe window is reused without a new call.
func (c *Client) Lookup(ctx context.Context, key string) (json.RawMessage, error) {
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}
	return c.refresh(ctx, key, false)
}

// Revalidate forces a fetch for key, bypassing cache and dedupe window, and
// notifies subscribers with the outcome.
func (c *Client) Revalidate(ctx context.Context, key string) (json.RawMessage, error) {
	return c.refresh(ctx, key, true)
}

// Invalidate drops the cached value and the dedupe record so the next
// Lookup hits the backend.
func (c *Client) Invalidate(key string) {
	c.cache.Clear(key)
	c.mu.Lock()
	delete(c.last, key)
	c.mu.Unlock()
}

// Subscribe delivers a Result each time key settles a fetch. The returned
// cancel function closes the channel.
func (c *Client) Subscribe(key string) (<-chan Result, func()) {
	ch := make(chan Result, 4)
	c.mu.Lock()
	c.subs[key] = append(c.subs[key], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[key]
		for i, sub := range subs {
			if sub == ch {
				c.subs[key] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Status reports the state machine position for key.
func (c *Client) Status(key string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, inFlight := c.flights[key]
	last, hasLast := c.last[key]

	switch {
	case inFlight && hasLast && last.err == nil:
		return StatusRevalidating
	case inFlight:
		return StatusLoading
	case hasLast && last.err != nil:
		return StatusError
	case hasLast:
		return StatusSuccess
	default:
		return StatusIdle
	}
}

// AutoRefresh revalidates key on the given interval until ctx is done. Run
// it on its own goroutine; it returns when ctx is cancelled so teardown
// leaves no orphaned timers behind.
func (c *Client) AutoRefresh(ctx context.Context, key string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Revalidate(ctx, key); err != nil {
				c.logger.Warn("background revalidation failed", "key", key, "err", err)
			}
		}
	}
}

func (c *Client) refresh(ctx context.Context, key string, force bool) (json.RawMessage, error) {
	c.mu.Lock()

	if !force {
		if last, ok := c.last[key]; ok && last.err == nil && time.Since(last.at) < c.opts.DedupeInterval {
			c.mu.Unlock()
			return last.data, nil
		}
	}

	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.data, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	f.data, f.err = c.fetchWithRetry(ctx, key)
	close(f.done)

	c.mu.Lock()
	delete(c.flights, key)
	c.last[key] = &settled{data: f.data, err: f.err, at: time.Now()}
	subs := make([]chan Result, len(c.subs[key]))
	copy(subs, c.subs[key])
	c.mu.Unlock()

	if f.err == nil {
		c.cache.Set(key, f.data)
	}

	result := Result{Key: key, Data: f.data, Err: f.err}
	for _, ch := range subs {
		select {
		case ch <- result:
		default:
		}
	}
	return f.data, f.err
}

// fetchWithRetry retries transient failures up to RetryCount times. Client
// errors other than 408 are permanent and surface immediately.
func (c *Client) fetchWithRetry(ctx context.Context, key string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RetryInterval):
			}
		}

		data, err := c.fetch(ctx, key)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !api.IsRetryable(err) {
			return nil, err
		}
		c.logger.Warn("fetch failed, retrying", "key", key, "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}
