package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker 进程内按 key 互斥，单实例部署时使用
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	timeout time.Duration
}

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker 创建进程内锁，timeout 为 0 时默认 5 秒
func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MemoryLocker{
		entries: make(map[string]*memoryEntry),
		timeout: timeout,
	}
}

// WithLock 在锁保护下执行函数
func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.acquireEntry(key)
	defer l.releaseEntry(key, e)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	select {
	case e.ch <- struct{}{}:
		cancel()
	case <-waitCtx.Done():
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}

func (l *MemoryLocker) acquireEntry(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

// releaseEntry 没有等待者时回收 key
func (l *MemoryLocker) releaseEntry(key string, e *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size 当前持有或等待中的 key 数量
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
