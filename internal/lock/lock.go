// Package lock 提供按实体加锁的互斥原语，保证读-改-写的原子性
package lock

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrLockNotHeld 锁未持有
	ErrLockNotHeld = errors.New("lock not held")
	// ErrLockTimeout 等待锁超时
	ErrLockTimeout = errors.New("lock wait timeout")
)

// Locker 按 key 互斥执行
type Locker interface {
	// WithLock 持有 key 对应的锁执行 fn，等待时间受 ctx 与超时配置约束
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PolicySetKey 策略集合锁，用于创建和重排
const PolicySetKey = "policy-set"

// PolicyKey 单个策略的锁
func PolicyKey(id int64) string {
	return "policy:" + strconv.FormatInt(id, 10)
}

// TransactionKey 单笔交易的锁
func TransactionKey(id int64) string {
	return "transaction:" + strconv.FormatInt(id, 10)
}
