package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2refocus/dogs-ai-sub000/internal/policy"
)

// ErrExceeded means the caller burned today's generation budget.
var ErrExceeded = errors.New("daily generation quota exceeded")

// Limits is the per-tier daily allowance. 0 = unlimited.
type Limits struct {
	Guest    int
	LoggedIn int
}

// Counter is a server-verified daily generation counter in Redis, keyed by
// user ID (or client IP for guests). It replaces the trivially bypassable
// client-held "free generations left" value.
type Counter struct {
	rdb    *redis.Client
	limits Limits
}

func New(rdb *redis.Client, limits Limits) *Counter {
	return &Counter{rdb: rdb, limits: limits}
}

func (c *Counter) limitFor(tier policy.Tier) int {
	switch tier {
	case policy.TierGuest:
		return c.limits.Guest
	case policy.TierLoggedIn:
		return c.limits.LoggedIn
	default: // premium: unlimited
		return 0
	}
}

// Take consumes one generation from today's budget. Returns ErrExceeded when
// the budget is gone. Redis being unavailable fails open: quota is a guard,
// not a ledger.
func (c *Counter) Take(ctx context.Context, tier policy.Tier, key string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	limit := c.limitFor(tier)
	if limit <= 0 {
		return nil
	}
	now := time.Now().UTC()
	rkey := fmt.Sprintf("quota:%s:%s:%s", tier, key, now.Format("2006-01-02"))
	n, err := c.rdb.Incr(ctx, rkey).Result()
	if err != nil {
		return nil
	}
	if n == 1 {
		_ = c.rdb.ExpireAt(ctx, rkey, windowEnd(now)).Err()
	}
	if n > int64(limit) {
		return ErrExceeded
	}
	return nil
}

// windowEnd is when today's counters reset: the next UTC midnight.
func windowEnd(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// Remaining reports today's leftover budget. -1 = unlimited.
func (c *Counter) Remaining(ctx context.Context, tier policy.Tier, key string) int {
	if c == nil || c.rdb == nil {
		return -1
	}
	limit := c.limitFor(tier)
	if limit <= 0 {
		return -1
	}
	rkey := fmt.Sprintf("quota:%s:%s:%s", tier, key, time.Now().UTC().Format("2006-01-02"))
	n, err := c.rdb.Get(ctx, rkey).Int()
	if err != nil {
		return limit
	}
	if n >= limit {
		return 0
	}
	return limit - n
}
