package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

// releaseScript deletes only keys still holding our token.
var releaseScript = redisv9.NewScript(`
local released = 0
for i, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		redis.call("DEL", key)
		released = released + 1
	end
end
return released
`)

// BatchLock marks documents as busy while a fine-tuning batch runs over them.
type BatchLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewBatchLock(client *redisv9.Client, ttl time.Duration) *BatchLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &BatchLock{
		client: client,
		ttl:    ttl,
	}
}

// Acquire takes every id or none. ok is false when any id is already held.
func (l *BatchLock) Acquire(ctx context.Context, ids []uint) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		key := l.documentKey(id)
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			_ = l.release(context.WithoutCancel(ctx), keys, token)
			return nil, false, fmt.Errorf("redis lock document %d failed: %w", id, err)
		}
		if !acquired {
			if err := l.release(ctx, keys, token); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		keys = append(keys, key)
	}

	return func(ctx context.Context) error {
		return l.release(ctx, keys, token)
	}, true, nil
}

func (l *BatchLock) release(ctx context.Context, keys []string, token string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, keys, token).Err(); err != nil {
		return fmt.Errorf("redis release document locks failed: %w", err)
	}
	return nil
}

func (l *BatchLock) documentKey(id uint) string {
	return fmt.Sprintf("finetune:document:lock:%d", id)
}
