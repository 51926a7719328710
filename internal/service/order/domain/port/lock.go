package port

import (
	"context"
	"errors"
)

// ErrLockHeld 表示锁已被其他持有者占用。
var ErrLockHeld = errors.New("lock is held by another owner")

// Locker 提供按 key 的互斥锁，用于保证同一用户同一时刻只有一个结账流程。
type Locker interface {
	// TryLock 尝试立即获取锁，被占用时返回 ErrLockHeld。
	TryLock(ctx context.Context, key string) (Lock, error)
}

type Lock interface {
	Unlock(ctx context.Context) error
}
