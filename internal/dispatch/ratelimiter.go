package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter caps delivery attempts per subscriber per second using a Redis
// sliding window. A denied attempt is still a real attempt from the chain's
// point of view: the deliverer records it as failed and the retry pipeline
// picks it up, so throttling never silently drops a delivery.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

// Atomically trims the window, counts it, and either admits the attempt or
// denies it. Runs as a Lua script so concurrent attempts for the same
// subscriber cannot race between count and add.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
end
return 0
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

// Allow reports whether a delivery to this subscriber fits within its rate
// limit. A limit of zero or less means unlimited. Redis failures fail open:
// delivery matters more than throttling accuracy.
func (rl *RateLimiter) Allow(ctx context.Context, subscriberID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	const window = int64(1000) // one second, in milliseconds

	allowed, err := rl.script.Run(ctx, rl.redisClient,
		[]string{"ratelimit:" + subscriberID},
		time.Now().UnixMilli(), window, limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "subscriber_id", subscriberID)
		return true
	}

	if allowed == 0 {
		rl.logger.Debug("delivery rate limited", "subscriber_id", subscriberID, "limit", limit)
		return false
	}
	return true
}
