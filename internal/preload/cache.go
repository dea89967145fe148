package preload

import (
	"sort"
	"sync"
	"time"
)

const (
	DefaultConnectionTTL      = 5 * time.Minute
	DefaultConnectionCapacity = 20
	DefaultResolutionTTL      = 10 * time.Minute
)

// Status is the outcome of a warm-up attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Connection records one warm-up attempt. It is mutated only by its own task
// and is immutable once cached.
type Connection struct {
	URL          string        `json:"url"`
	Domain       string        `json:"domain"`
	StartedAt    time.Time     `json:"started_at"`
	Status       Status        `json:"status"`
	ConnectTime  time.Duration `json:"connect_time_ns,omitempty"`
	DNSResolved  bool          `json:"dns_resolved"`
	TCPConnected bool          `json:"tcp_connected"`
	TLSHandshake bool          `json:"tls_handshake"`
	Err          string        `json:"error,omitempty"`
}

type cachedConnection struct {
	conn     Connection
	storedAt time.Time
}

// ConnectionCache holds recent warm-up outcomes keyed by URL.
type ConnectionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	entries  map[string]cachedConnection
}

// NewConnectionCache creates a cache. Non-positive ttl or capacity use the
// defaults.
func NewConnectionCache(ttl time.Duration, capacity int, now func() time.Time) *ConnectionCache {
	if ttl <= 0 {
		ttl = DefaultConnectionTTL
	}
	if capacity <= 0 {
		capacity = DefaultConnectionCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &ConnectionCache{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		entries:  make(map[string]cachedConnection),
	}
}

// Get returns the unexpired entry for url.
func (c *ConnectionCache) Get(url string) (Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return Connection{}, false
	}
	return e.conn, true
}

// Put stores conn and purges the cache.
func (c *ConnectionCache) Put(conn Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[conn.URL] = cachedConnection{conn: conn, storedAt: c.now()}
	c.purgeLocked()
}

// Purge drops expired entries, then the oldest ones beyond capacity.
func (c *ConnectionCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *ConnectionCache) purgeLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= c.capacity {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].storedAt.Before(c.entries[keys[j]].storedAt)
	})
	for _, k := range keys[:len(keys)-c.capacity] {
		delete(c.entries, k)
	}
}

// Clear empties the cache.
func (c *ConnectionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of entries held.
func (c *ConnectionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ResolutionCache remembers hosts that resolved successfully. It has no
// capacity bound.
type ResolutionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[string]time.Time
}

// NewResolutionCache creates a cache. A non-positive ttl uses the default.
func NewResolutionCache(ttl time.Duration, now func() time.Time) *ResolutionCache {
	if ttl <= 0 {
		ttl = DefaultResolutionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ResolutionCache{ttl: ttl, now: now, expires: make(map[string]time.Time)}
}

// Has reports whether host resolved within the TTL.
func (r *ResolutionCache) Has(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.expires[host]
	return ok && r.now().Before(exp)
}

// Put marks host as resolved now.
func (r *ResolutionCache) Put(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[host] = r.now().Add(r.ttl)
}

// Purge drops expired hosts.
func (r *ResolutionCache) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for h, exp := range r.expires {
		if !now.Before(exp) {
			delete(r.expires, h)
		}
	}
}

// Clear forgets every host.
func (r *ResolutionCache) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.expires)
}

// Len returns the number of hosts held, expired or not.
func (r *ResolutionCache) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expires)
}
