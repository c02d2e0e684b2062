package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ride-pool/internal/pool-service/service"
)

// Release and extend only act when the key still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker implements service.Locker with SET NX PX
type RedisLocker struct {
	client redis.UniversalClient
}

var _ service.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (service.Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return service.Lease{}, false, fmt.Errorf("set %s: %w", key, err)
	}
	if !ok {
		return service.Lease{}, false, nil
	}
	return service.Lease{Key: key, Token: token, ExpiresAt: time.Now().Add(ttl)}, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease service.Lease) error {
	if err := releaseScript.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", lease.Key, err)
	}
	return nil
}

func (l *RedisLocker) Extend(ctx context.Context, lease service.Lease, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{lease.Key}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", lease.Key, err)
	}
	return n == 1, nil
}
