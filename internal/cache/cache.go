// Package cache provides the local response cache for backend endpoints.
//
// Entries are JSON files under a single directory, one per endpoint key,
// with a fixed time-to-live. A keys index file tracks live entries so a
// bulk clear does not have to scan the directory. Storage and serialization
// failures are logged and swallowed: from the caller's perspective a cache
// error is indistinguishable from a cache miss.
package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const keysIndexFile = "keys.json"

// Entry is one cached payload with its expiry metadata.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Cache is a file-backed key-value cache with a fixed TTL.
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	now  func() time.Time
	keys map[string]struct{}
}

// New creates a Cache rooted at dir. The directory is created if needed.
func New(dir string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]struct{}),
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("failed to create cache directory", "dir", dir, "err", err)
		return c
	}
	c.loadIndex()
	return c
}

// Get returns the payload for key if it has not expired. An expired entry is
// evicted on read.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("evicting corrupt cache entry", "key", key, "err", err)
		c.removeLocked(key)
		return nil, false
	}

	if !c.now().Before(entry.ExpiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return entry.Data, true
}

// Set stores v under key with expiry now+TTL. Failures are logged, never
// returned.
func (c *Cache) Set(key string, v any) {
	raw, err := toRaw(v)
	if err != nil {
		c.logger.Warn("failed to serialize cache entry", "key", key, "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := Entry{Data: raw, StoredAt: now, ExpiresAt: now.Add(c.ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("failed to serialize cache entry", "key", key, "err", err)
		return
	}

	// Write to temp file first, then rename (atomic).
	path := c.path(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		c.logger.Warn("failed to write cache entry", "key", key, "err", err)
		return
	}
	if err := os.Rename(tmpPath, path); err != nil {
		c.logger.Warn("failed to write cache entry", "key", key, "err", err)
		return
	}

	if _, ok := c.keys[key]; !ok {
		c.keys[key] = struct{}{}
		c.saveIndex()
	}
}

// Clear removes one entry.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// ClearAll removes every entry listed in the keys index.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.keys {
		if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove cache entry", "key", key, "err", err)
		}
	}
	c.keys = make(map[string]struct{})
	c.saveIndex()
}

// Keys returns the live keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.keys))
	for key := range c.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (c *Cache) removeLocked(key string) {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove cache entry", "key", key, "err", err)
	}
	if _, ok := c.keys[key]; ok {
		delete(c.keys, key)
		c.saveIndex()
	}
}

func (c *Cache) loadIndex() {
	data, err := os.ReadFile(filepath.Join(c.dir, keysIndexFile))
	if err != nil {
		return
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		c.logger.Warn("ignoring corrupt cache index", "err", err)
		return
	}
	for _, key := range keys {
		c.keys[key] = struct{}{}
	}
}

func (c *Cache) saveIndex() {
	keys := make([]string, 0, len(c.keys))
	for key := range c.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		c.logger.Warn("failed to serialize cache index", "err", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, keysIndexFile), data, 0644); err != nil {
		c.logger.Warn("failed to write cache index", "err", err)
	}
}

// sanitizeKey makes an endpoint key safe for filenames.
var sanitizeKey = strings.NewReplacer("/", "_", "?", "_", "&", "_", "=", "_", ":", "-")

// path maps a key to its cache file. A short hash of the original key keeps
// distinct keys apart even when they sanitize to the same name.
func (c *Cache) path(key string) string {
	h := fnv.New32a()
	h.Write([]byte(key))
	name := fmt.Sprintf("%s-%08x.json", sanitizeKey.Replace(key), h.Sum32())
	return filepath.Join(c.dir, name)
}

func toRaw(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	if raw, ok := v.([]byte); ok {
		return json.RawMessage(raw), nil
	}
	return json.Marshal(v)
}
