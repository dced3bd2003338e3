// Package ratelimit throttles abuse-prone actions with fixed-window counters
// keyed by (action, client). It is operational plumbing: rejections are
// surfaced to callers but never written to the audit trail.
package ratelimit

import (
	"context"
	"time"
)

// Throttled actions. Budgets are configured per action in main.
const (
	ActionUnlock        = "unlock"
	ActionAccessRequest = "access.request"
)

// Decision is the limiter's answer for one request. RetryAfter is only set
// when the request was rejected.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Budget is a per-action request allowance over a window.
type Budget struct {
	Requests int
	Window   time.Duration
}

// Limiter decides whether an action is permitted for a client key right now.
// Implementations must be safe for concurrent use and must increment counters
// atomically per key. Backend faults fail open: throttling exists to curb
// abuse, not to take the door offline.
type Limiter interface {
	Allow(ctx context.Context, action, clientKey string) Decision
}

func bucketKey(action, clientKey string) string {
	return "ratelimit:" + action + ":" + clientKey
}
