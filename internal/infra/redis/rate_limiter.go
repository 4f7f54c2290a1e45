package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter. It backs two concerns: throttling
// payment initiation per user, and deduplicating expiry reminders per
// subscription.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow reports whether key has been hit fewer than limit times in the
// current window. The first hit arms the window's expiry.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// UserCommandKey scopes a limit to one user and one action.
func UserCommandKey(tgID int64, command string) string {
	return fmt.Sprintf("rate_limit:%d:%s", tgID, command)
}

// NoticeKey scopes the expiring-soon reminder dedupe to one subscription.
func NoticeKey(subscriptionID string) string {
	return "expiry_notice:" + subscriptionID
}
