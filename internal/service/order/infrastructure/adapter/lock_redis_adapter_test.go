package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain/port"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locker, err := NewRedisLocker(redis.Wrap(rdb), ttl)
	require.NoError(t, err)
	return locker, mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	lock, err := locker.TryLock(ctx, "checkout:u1")
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "checkout:u1")
	assert.ErrorIs(t, err, port.ErrLockHeld)

	// 不同用户互不影响
	other, err := locker.TryLock(ctx, "checkout:u2")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(ctx))

	require.NoError(t, lock.Unlock(ctx))
	again, err := locker.TryLock(ctx, "checkout:u1")
	require.NoError(t, err)
	assert.NoError(t, again.Unlock(ctx))
}

func TestRedisLocker_ExpiredLockIsNotDeletedByOldOwner(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	old, err := locker.TryLock(ctx, "checkout:u1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	current, err := locker.TryLock(ctx, "checkout:u1")
	require.NoError(t, err)

	assert.ErrorIs(t, old.Unlock(ctx), errLockLost)
	_, err = locker.TryLock(ctx, "checkout:u1")
	assert.ErrorIs(t, err, port.ErrLockHeld, "old owner must not release the new owner's lock")

	require.NoError(t, current.Unlock(ctx))
}
