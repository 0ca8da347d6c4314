package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FinanceLockKey builds redis keys for finance critical sections.
func FinanceLockKey(tenantID, periodID int64) string {
	return fmt.Sprintf("finance:tenant:%d:period:%d:lock", tenantID, periodID)
}

// ErrLockHeld indicates another holder owns the key.
var ErrLockHeld = errors.New("lock already held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker hands out expiring, token-guarded locks.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker wraps a redis client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Lock is a held key. Release only deletes the key while it still carries our token.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes key for ttl or fails with ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not configured")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
