package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidLimit  = errors.New("rate limit must be positive")
	ErrEmptyKey      = errors.New("rate limit key is empty")
)

// Tokens are stored in thousandths so partial refills survive the trip
// through redis, which truncates Lua numbers to integers.
const tokenScale = 1000

// KEYS[1] bucket. ARGV: refill per second (millitokens), capacity (millitokens), ttl ms.
// Returns {allowed, remaining millitokens, wait ms}.
const bucketScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "level", "at")
local level = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now

local elapsed = math.max(0, now - at)
level = math.min(capacity, level + math.floor(elapsed * refill / 1000))

local allowed = 0
local wait = 0
if level >= 1000 then
  allowed = 1
  level = level - 1000
else
  wait = math.ceil((1000 - level) * 1000 / refill)
end

redis.call("HSET", KEYS[1], "level", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, level, wait}
`

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// bucket is a redis token bucket refilled continuously at a per-second rate.
type bucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func newBucket(client *redis.Client, ratePerSecond float64, burst int) (*bucket, error) {
	if client == nil {
		return nil, ErrNotConfigured
	}
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &bucket{
		client: client,
		script: redis.NewScript(bucketScript),
		rate:   ratePerSecond,
		burst:  burst,
		ttl:    bucketTTL(ratePerSecond, burst),
	}, nil
}

func (b *bucket) take(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	refill := int64(math.Max(1, math.Round(b.rate*tokenScale)))
	res, err := b.script.Run(ctx, b.client, []string{key},
		refill,
		int64(b.burst)*tokenScale,
		b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket: %w", err)
	}
	return decodeBucketReply(res, b.burst)
}

func decodeBucketReply(res []int64, burst int) (Decision, error) {
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply of %d values", len(res))
	}
	return Decision{
		Allowed:    res[0] == 1,
		Limit:      burst,
		Remaining:  int(res[1] / tokenScale),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle bucket long enough to refill twice over.
func bucketTTL(ratePerSecond float64, burst int) time.Duration {
	if ratePerSecond <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(2 * float64(burst) / ratePerSecond)
	return time.Duration(math.Max(1, seconds)) * time.Second
}
