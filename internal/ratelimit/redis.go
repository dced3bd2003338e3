package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stayflow/guestgate/pkg/logger"
)

// RedisLimiter keeps fixed-window counters in Redis so budgets hold across
// instances. INCR plus a first-hit EXPIRE gives atomic per-key counting; the
// window boundary is the bucket's TTL.
type RedisLimiter struct {
	client  *redis.Client
	budgets map[string]Budget
}

func NewRedisLimiter(client *redis.Client, budgets map[string]Budget) *RedisLimiter {
	return &RedisLimiter{client: client, budgets: budgets}
}

func (l *RedisLimiter) Allow(ctx context.Context, action, clientKey string) Decision {
	budget, ok := l.budgets[action]
	if !ok || budget.Requests <= 0 {
		return Decision{Allowed: true}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	key := bucketKey(action, clientKey)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open on backend error; the audit trail still records what the
		// request ultimately did.
		logger.WarnContext(ctx, "rate limit backend unavailable, allowing request",
			"action", action, "error", err)
		return Decision{Allowed: true}
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, budget.Window).Err(); err != nil {
			logger.WarnContext(ctx, "failed to set rate limit window", "action", action, "error", err)
		}
	}

	if count > int64(budget.Requests) {
		retry := budget.Window
		if ttl, err := l.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retry = ttl
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}
