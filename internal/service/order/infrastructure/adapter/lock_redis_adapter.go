package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain/port"
)

const unlockScriptName = "compare_and_delete"

// 只有持有者（value 相同）才能删除锁，避免误删过期后被别人拿到的锁
var unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisLocker 是 port.Locker 的 Redis 实现（SET NX PX）。
type RedisLocker struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisLocker 创建锁适配器，并加载解锁用的 Lua 脚本。
func NewRedisLocker(redisClient *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if err := redisClient.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	return &RedisLocker{redisClient: redisClient, ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (port.Lock, error) {
	lockKey := fmt.Sprintf("lock:{%s}", key)
	token := uuid.New().String()

	ok, err := l.redisClient.GetClient().SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, port.ErrLockHeld
	}
	return &redisLock{client: l.redisClient, key: lockKey, token: token}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

var errLockLost = errors.New("lock expired or was taken over before unlock")

func (l *redisLock) Unlock(ctx context.Context) error {
	result, err := l.client.RunScript(ctx, unlockScriptName, []string{l.key}, l.token)
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return errLockLost
	}
	return nil
}
