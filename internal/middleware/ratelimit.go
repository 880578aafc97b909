package middleware

import (
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// RateLimitResult is what a handler needs to emit 429 responses with
// retry-informing headers.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter is a fixed-window counter keyed by caller identity and
// workflow bucket. Windows live in memory with process lifetime, same as
// the job store this limiter protects.
type RateLimiter struct {
	per time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter with the given window length.
func NewRateLimiter(per time.Duration) *RateLimiter {
	if per <= 0 {
		per = time.Minute
	}
	return &RateLimiter{
		per:     per,
		buckets: make(map[string]*bucket),
	}
}

// Check consumes one slot for identity in the named bucket, allowing at
// most limit requests per window. A denied check consumes nothing.
func (l *RateLimiter) Check(identity, name string, limit int) RateLimitResult {
	key := name + "|" + identity

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{count: 0, until: now.Add(l.per)}
		l.buckets[key] = b
	}
	res := RateLimitResult{Limit: limit, Reset: b.until}
	if b.count >= limit {
		res.Remaining = 0
		return res
	}
	b.count++
	res.Allowed = true
	res.Remaining = limit - b.count
	return res
}
