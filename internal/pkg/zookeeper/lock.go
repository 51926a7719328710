// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
	seqLen   = 10                   // ZooKeeper 顺序节点后缀固定为 10 位数字
)

var (
	ErrNotLocked = errors.New("no lock to unlock")
	// ErrLockBusy 由 TryLock 返回，表示锁已被其他会话持有
	ErrLockBusy = errors.New("lock is held by another session")
)

// Connect 连接 ZooKeeper 集群。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %v: %w", servers, err)
	}
	return conn, nil
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *zk.Conn // ZooKeeper连接
	path     string   // 锁的路径，例如 /distributed_locks/checkout-user-1
	lockNode string   // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在。
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	if err := ensureNode(conn, lockRoot); err != nil {
		return nil, fmt.Errorf("failed to create lock root node: %w", err)
	}
	lockPath := lockRoot + "/" + strings.ReplaceAll(resourceID, "/", "_")
	if err := ensureNode(conn, lockPath); err != nil {
		return nil, fmt.Errorf("failed to create lock path node %s: %w", lockPath, err)
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return err
	}
	return nil
}

// TryLock 只竞争一次：自己不是最小节点时立即放弃并返回 ErrLockBusy。
func (l *DistributedLock) TryLock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		l.abandon()
		return fmt.Errorf("failed to get children nodes: %w", err)
	}
	sortBySequence(children)
	if len(children) == 0 || children[0] != strings.TrimPrefix(nodePath, l.path+"/") {
		l.abandon()
		return ErrLockBusy
	}
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotLocked
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) abandon() {
	_ = l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
}

func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })
}

func sequence(node string) string {
	if len(node) < seqLen {
		return node
	}
	return node[len(node)-seqLen:]
}
