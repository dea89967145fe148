package preload

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter bounds how often any single host is warmed.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewHostLimiter allows perMinute warm-ups per host with the given burst.
// A non-positive perMinute disables limiting.
func NewHostLimiter(perMinute, burst int, now func() time.Time) *HostLimiter {
	r := rate.Inf
	if perMinute > 0 {
		r = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst <= 0 {
		burst = 1
	}
	if now == nil {
		now = time.Now
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		now:      now,
	}
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = lim
	}
	return lim
}

// Allow consumes one warm-up token for host.
func (l *HostLimiter) Allow(host string) bool {
	return l.limiter(host).AllowN(l.now(), 1)
}
