// Package aicache provides the TTL-expiring, capacity-bounded response cache
// for AI generations. Entries are keyed by a deterministic digest of the full
// request identity so that identical requests share one cached response.
//
// Eviction is least-frequently-used: the cache tracks an access count per
// entry, not recency, so two entries with equal counts are tied and the first
// found wins. This mirrors the historical behavior and is deliberate.
package aicache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// compressMinBytes is the payload size above which entries are stored
// gzip-compressed.
const compressMinBytes = 4096

// KeyFields are the generation parameters that participate in the cache key.
type KeyFields struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Key derives the deterministic cache key for a request. Identical inputs
// always yield the same key; any differing field yields a different key.
// Each field is length-prefixed before hashing so free-text fields cannot
// shift bytes into a neighboring field and collide.
func Key(featureID, query, contextStr string, k KeyFields) string {
	h := sha256.New()
	for _, f := range []string{featureID, query, contextStr, k.Provider, k.Model} {
		fmt.Fprintf(h, "%d:%s", len(f), f)
	}
	fmt.Fprintf(h, "%g:%d", k.Temperature, k.MaxTokens)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:20])
}

// Config contains cache configuration.
type Config struct {
	Enabled    bool
	DefaultTTL time.Duration
	MaxSize    int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: time.Hour,
		MaxSize:    1000,
	}
}

// Stats are the cache counters. All counters are updated under one lock and
// are therefore consistent relative to each other.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Puts      uint64  `json:"puts"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hitRate"`
}

type entry struct {
	payload     []byte
	compressed  bool
	expiresAt   time.Time
	accessCount uint64
}

// Cache is an in-memory response cache. All structural mutations are
// serialized through one mutex; the periodic sweep goes through the same
// mutex so it never races foreground operations.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	logger  *slog.Logger

	hits      uint64
	misses    uint64
	puts      uint64
	evictions uint64

	now func() time.Time
}

// New creates a response cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	return &Cache{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Get looks up a cached response. An expired entry is deleted and reported
// as a miss. A disabled cache always misses.
func (c *Cache) Get(featureID, query, contextStr string, k KeyFields) (string, bool) {
	if !c.cfg.Enabled {
		return "", false
	}

	key := Key(featureID, query, contextStr, k)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}

	// Lazy expiry: the entry is logically absent once now >= expiresAt,
	// independent of sweep timing.
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return "", false
	}

	e.accessCount++
	c.hits++

	payload, err := decode(e)
	if err != nil {
		// A corrupt entry is treated as a miss and dropped.
		delete(c.entries, key)
		c.hits--
		c.misses++
		c.logger.Warn("Dropping undecodable cache entry", "key", key, "error", err.Error())
		return "", false
	}
	return payload, true
}

// Put stores a response under the resolved TTL. A non-positive ttl falls
// back to the configured default. A disabled cache makes Put a no-op.
func (c *Cache) Put(featureID, query, contextStr, value string, ttl time.Duration, k KeyFields) {
	if !c.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	key := Key(featureID, query, contextStr, k)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict before inserting a new key at capacity.
	if _, exists := c.entries[key]; !exists && c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize {
		c.evictLeastUsedLocked()
	}

	e := &entry{expiresAt: c.now().Add(ttl)}
	if len(value) >= compressMinBytes {
		if compressed, err := compress([]byte(value)); err == nil {
			e.payload = compressed
			e.compressed = true
		} else {
			e.payload = []byte(value)
		}
	} else {
		e.payload = []byte(value)
	}

	c.entries[key] = e
	c.puts++
}

// evictLeastUsedLocked removes the entry with the lowest access count.
// Caller must hold c.mu.
func (c *Cache) evictLeastUsedLocked() {
	var victim string
	var minCount uint64
	first := true
	for key, e := range c.entries {
		if first || e.accessCount < minCount {
			victim = key
			minCount = e.accessCount
			first = false
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
		c.logger.Debug("Evicted cache entry", "key", victim, "accessCount", minCount)
	}
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("Swept expired cache entries", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Clear removes all entries. Counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats returns a consistent snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Puts:      c.puts,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Len returns the current number of live entries, counting out entries that
// have expired but not yet been swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Enabled reports whether the cache is globally enabled.
func (c *Cache) Enabled() bool {
	return c.cfg.Enabled
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(e *entry) (string, error) {
	if !e.compressed {
		return string(e.payload), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(e.payload))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
