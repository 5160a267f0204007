package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinktestai/thinktest/internal/config"
)

func TestGenerationLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewGenerationLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	ctx := context.Background()
	res, err := limiter.Allow(ctx, "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLock(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.Release(ctx, "42", token))
}

func TestGenerationLimiterRejectsNonPositiveLimits(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{Generation: config.GenerationConfig{RatePerMinute: 0, Burst: 5}}
	_, err := NewGenerationLimiter(cfg, client)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	cfg.Generation = config.GenerationConfig{RatePerMinute: 10, Burst: 5}
	limiter, err := NewGenerationLimiter(cfg, client)
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
	assert.Equal(t, defaultGenerationLockTTL, limiter.inflight.ttl)
	assert.InDelta(t, 10.0/60, limiter.bucket.rate, 1e-9)
}

func TestGenerationKeys(t *testing.T) {
	assert.Equal(t, "thinktest:generation:rate:42", GenerationBucketKey(" 42 "))
	assert.Equal(t, "thinktest:generation:inflight:42", GenerationLockKey("42"))
}

func TestBucketRequiresClient(t *testing.T) {
	_, err := newBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = newInflight(nil, time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 5))
	assert.Equal(t, 20*time.Second, bucketTTL(0.5, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestDecodeBucketReply(t *testing.T) {
	d, err := decodeBucketReply([]int64{1, 3500, 0}, 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
	assert.Equal(t, 5, d.Limit)

	d, err = decodeBucketReply([]int64{0, 250, 4500}, 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 4500*time.Millisecond, d.RetryAfter)

	_, err = decodeBucketReply([]int64{1}, 5)
	assert.Error(t, err)
}
