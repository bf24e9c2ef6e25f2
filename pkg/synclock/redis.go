package synclock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed locker. Keys are stored under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	k := r.prefix + key
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %q: %w", key, err)
		}
		return nil
	}, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
