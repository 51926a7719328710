package adapter

import (
	"context"
	"errors"

	"github.com/go-zookeeper/zk"

	"storefront/internal/pkg/zookeeper"
	"storefront/internal/service/order/domain/port"
)

// ZookeeperLocker 是 port.Locker 的 ZooKeeper 实现，基于临时顺序节点。
// 会话断开时锁节点自动消失，不需要 TTL。
type ZookeeperLocker struct {
	conn *zk.Conn
}

func NewZookeeperLocker(conn *zk.Conn) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn}
}

func (l *ZookeeperLocker) TryLock(ctx context.Context, key string) (port.Lock, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, key)
	if err != nil {
		return nil, err
	}
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, zookeeper.ErrLockBusy) {
			return nil, port.ErrLockHeld
		}
		return nil, err
	}
	return zkLock{lock: lock}, nil
}

type zkLock struct {
	lock *zookeeper.DistributedLock
}

func (l zkLock) Unlock(context.Context) error {
	return l.lock.Unlock()
}
