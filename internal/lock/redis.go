package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "article_sync:lock:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every process pointing at the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "lock"),
	}, nil
}

// TryLock sets the key if absent. The lease expires after the TTL in case
// the holder dies without releasing.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := keyPrefix + key

	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{k}, token).Err(); err != nil {
			r.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
