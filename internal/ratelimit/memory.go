package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is a fixed-window counter held in process memory. It backs
// tests and single-instance deployments where Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	budgets map[string]Budget

	now func() time.Time
}

func NewMemoryLimiter(budgets map[string]Budget) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*memoryBucket),
		budgets: budgets,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, action, clientKey string) Decision {
	budget, ok := l.budgets[action]
	if !ok || budget.Requests <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	key := bucketKey(action, clientKey)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= budget.Window {
		l.buckets[key] = &memoryBucket{count: 1, windowStart: now}
		return Decision{Allowed: true}
	}

	b.count++
	if b.count > budget.Requests {
		retry := budget.Window - now.Sub(b.windowStart)
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// Cleanup drops buckets whose window has long passed. Call periodically from
// a janitor goroutine.
func (l *MemoryLimiter) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		stale := true
		for _, budget := range l.budgets {
			if now.Sub(b.windowStart) < 2*budget.Window {
				stale = false
				break
			}
		}
		if stale {
			delete(l.buckets, key)
		}
	}
}

// StartJanitor cleans idle buckets until the context is canceled.
func (l *MemoryLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
