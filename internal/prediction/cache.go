package prediction

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheCapacity = 50
)

type cacheEntry struct {
	key         string
	predictions []Prediction
	createdAt   time.Time
}

// CacheStats reports prediction cache effectiveness.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cache is a TTL- and size-bounded store of prediction lists. One Cache is
// shared by every engine in the process.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
	stats    CacheStats
}

// NewCache creates a cache. Non-positive ttl or capacity use the defaults;
// a nil clock uses time.Now.
func NewCache(ttl time.Duration, capacity int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      now,
	}
}

// Get returns a copy of the cached list for key if it is younger than the TTL.
func (c *Cache) Get(key string) ([]Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.createdAt) >= c.ttl {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return clonePredictions(e.predictions), true
}

// Put stores predictions under key, then drops expired entries and evicts
// the oldest until the cache is within capacity.
func (c *Cache) Put(key string, predictions []Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		key:         key,
		predictions: clonePredictions(predictions),
		createdAt:   c.now(),
	}
	c.cleanupLocked()
}

// clonePredictions copies the slice and each Metadata so callers never share
// state with a cache entry.
func clonePredictions(in []Prediction) []Prediction {
	out := append([]Prediction(nil), in...)
	for i := range out {
		if out[i].Metadata != nil {
			md := *out[i].Metadata
			out[i].Metadata = &md
		}
	}
	return out
}

func (c *Cache) cleanupLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}

	if len(c.entries) <= c.capacity {
		return
	}
	byAge := make([]cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].createdAt.Before(byAge[j].createdAt)
	})
	for _, e := range byAge[:len(byAge)-c.capacity] {
		delete(c.entries, e.key)
		c.stats.Evictions++
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// cacheKey normalizes the parts of a request that change its answer.
func cacheKey(pctx Context, opts Options, now time.Time) string {
	at := pctx.Now
	if at.IsZero() {
		at = now
	}

	contextPart := strings.Join([]string{
		pctx.domain(),
		strconv.Itoa(at.Hour()),
		strings.ToLower(strings.TrimSpace(pctx.SearchQuery)),
		strings.ToLower(strings.TrimSpace(string(pctx.Intent))),
	}, "|")

	cats := make([]string, len(opts.Categories))
	for i, c := range opts.Categories {
		cats[i] = string(c)
	}
	sort.Strings(cats)

	optionsPart := fmt.Sprintf("%d|%s|%.3f|%d|%t",
		opts.MaxPredictions,
		strings.Join(cats, ","),
		opts.MinConfidence,
		int64(opts.TimeWindow/time.Minute),
		opts.IncludeMetadata,
	)

	return contextPart + "#" + optionsPart
}
