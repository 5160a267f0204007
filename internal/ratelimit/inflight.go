package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes KEYS[1] only while it still holds the caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// inflight admits one holder per key until release or ttl expiry.
type inflight struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

func newInflight(client *redis.Client, ttl time.Duration) (*inflight, error) {
	if client == nil {
		return nil, ErrNotConfigured
	}
	if ttl <= 0 {
		return nil, ErrInvalidLimit
	}
	return &inflight{
		client:  client,
		release: redis.NewScript(releaseScript),
		ttl:     ttl,
	}, nil
}

// acquire returns the holder token and whether the key was free.
func (f *inflight) acquire(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	token := uuid.NewString()
	ok, err := f.client.SetNX(ctx, key, token, f.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return token, ok, nil
}

func (f *inflight) drop(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return f.release.Run(ctx, f.client, []string{key}, token).Err()
}
