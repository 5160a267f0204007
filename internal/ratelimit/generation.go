package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/thinktestai/thinktest/internal/config"
)

const defaultGenerationLockTTL = 2 * time.Minute

// GenerationLimiter throttles paid generation calls per user and allows at
// most one in-flight generation per user. A nil limiter admits everything.
type GenerationLimiter struct {
	bucket   *bucket
	inflight *inflight
}

func NewGenerationLimiter(cfg config.Config, client *redis.Client) (*GenerationLimiter, error) {
	if client == nil {
		return nil, nil
	}

	gen := cfg.Generation
	if gen.RatePerMinute <= 0 || gen.Burst <= 0 {
		return nil, fmt.Errorf("generation limiter: %w", ErrInvalidLimit)
	}
	lockTTL := gen.InFlightTTL
	if lockTTL <= 0 {
		lockTTL = defaultGenerationLockTTL
	}

	b, err := newBucket(client, gen.RatePerMinute/60, gen.Burst)
	if err != nil {
		return nil, fmt.Errorf("generation limiter: %w", err)
	}
	f, err := newInflight(client, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("generation limiter: %w", err)
	}
	return &GenerationLimiter{bucket: b, inflight: f}, nil
}

func (l *GenerationLimiter) Enabled() bool {
	return l != nil
}

// Allow takes one token from the user's bucket.
func (l *GenerationLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, GenerationBucketKey(userID))
}

// TryLock claims the user's generation slot. The returned token releases it.
func (l *GenerationLimiter) TryLock(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.inflight.acquire(ctx, GenerationLockKey(userID))
}

func (l *GenerationLimiter) Release(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.inflight.drop(ctx, GenerationLockKey(userID), token)
}

func GenerationBucketKey(userID string) string {
	return "thinktest:generation:rate:" + strings.TrimSpace(userID)
}

func GenerationLockKey(userID string) string {
	return "thinktest:generation:inflight:" + strings.TrimSpace(userID)
}
