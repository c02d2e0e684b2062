package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-key token bucket kept in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     time.Duration
	capacity int
	now      func() time.Time
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewMemoryLimiter refills one token every rate, up to capacity.
func NewMemoryLimiter(rate time.Duration, capacity int) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
	}
}

// Allow takes one token for key if one is available.
func (l *MemoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastFill: now}
		l.buckets[key] = b
	}

	if refill := int(now.Sub(b.lastFill) / l.rate); refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.lastFill = b.lastFill.Add(time.Duration(refill) * l.rate)
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Run drops buckets that have been full for a while, until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// After this long every bucket has refilled completely.
	idle := time.Duration(l.capacity) * l.rate
	for key, b := range l.buckets {
		if l.now().Sub(b.lastFill) >= idle {
			delete(l.buckets, key)
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
