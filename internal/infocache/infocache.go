package infocache

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"spool/internal/logging"
	"spool/internal/services/ytdlp"
)

// entry pairs cached metadata with the time it was fetched.
type entry struct {
	info      ytdlp.VideoInfo
	fetchedAt time.Time
}

// Cache keeps recently fetched video metadata in memory so repeated
// lookups for the same URL do not re-run the extractor. Entries expire
// after the configured TTL; when the cache is full the oldest entry is
// evicted.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// Option adjusts cache construction.
type Option func(*Cache)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a cache with the given TTL and capacity. A non-positive
// TTL disables caching entirely; a non-positive capacity falls back to
// a sensible default.
func New(ttl time.Duration, maxEntries int, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logging.NewComponentLogger(logger, "infocache"),
		now:        time.Now,
		entries:    make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns cached metadata for url when present and fresh.
func (c *Cache) Lookup(url string) (ytdlp.VideoInfo, bool) {
	url = strings.TrimSpace(url)
	if c == nil || url == "" || c.ttl <= 0 {
		return ytdlp.VideoInfo{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, found := c.entries[url]
	if !found {
		return ytdlp.VideoInfo{}, false
	}
	if c.now().Sub(ent.fetchedAt) > c.ttl {
		delete(c.entries, url)
		return ytdlp.VideoInfo{}, false
	}
	return ent.info, true
}

// Store records metadata for url, evicting the oldest entry when full.
func (c *Cache) Store(url string, info ytdlp.VideoInfo) {
	url = strings.TrimSpace(url)
	if c == nil || url == "" || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[url]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[url] = entry{info: info, fetchedAt: c.now()}
}

// PurgeExpired drops every entry older than the TTL and reports how
// many were removed. The janitor calls this on its sweep interval.
func (c *Cache) PurgeExpired() int {
	if c == nil || c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for url, ent := range c.entries {
		if ent.fetchedAt.Before(cutoff) {
			delete(c.entries, url)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("purged expired metadata entries", logging.Int("removed", removed))
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestURL string
		oldestAt  time.Time
	)
	for url, ent := range c.entries {
		if oldestURL == "" || ent.fetchedAt.Before(oldestAt) {
			oldestURL = url
			oldestAt = ent.fetchedAt
		}
	}
	if oldestURL != "" {
		delete(c.entries, oldestURL)
	}
}
