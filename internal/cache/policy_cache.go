// Package cache 提供启用策略集合的 Redis 快照缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

const (
	generationKey     = "policy:active:gen"
	snapshotKeyPrefix = "policy:active:snapshot:"

	// DefaultSnapshotTTL 代数递增失败时，旧快照最多被读到这么久
	DefaultSnapshotTTL = 30 * time.Second

	invalidateAttempts = 3
)

// PolicyCache 启用策略快照缓存
// 每次变更提交后递增代数，旧代数的快照自然失效
type PolicyCache struct {
	client       redis.UniversalClient
	ttl          time.Duration
	retryBackoff time.Duration
}

// NewPolicyCache 创建策略缓存
func NewPolicyCache(client redis.UniversalClient, ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &PolicyCache{client: client, ttl: ttl, retryBackoff: 50 * time.Millisecond}
}

// TTL 快照过期时间
func (c *PolicyCache) TTL() time.Duration {
	return c.ttl
}

// Generation 当前代数，未初始化时为 0
func (c *PolicyCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

// GetActive 读取指定代数的快照，未命中返回 nil, false
func (c *PolicyCache) GetActive(ctx context.Context, gen int64) ([]*model.Policy, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(gen)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var policies []*model.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, false, err
	}
	return policies, true, nil
}

// SetActive 写入指定代数的快照
func (c *PolicyCache) SetActive(ctx context.Context, gen int64, policies []*model.Policy) error {
	if policies == nil {
		policies = []*model.Policy{}
	}
	data, err := json.Marshal(policies)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(gen), data, c.ttl).Err()
}

// Invalidate 递增代数，使当前快照失效
// 失败时按线性退避重试，全部失败则返回最后一次错误
func (c *PolicyCache) Invalidate(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= invalidateAttempts; attempt++ {
		if err = c.client.Incr(ctx, generationKey).Err(); err == nil {
			return nil
		}
		if attempt == invalidateAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.retryBackoff):
		}
	}
	return err
}

func snapshotKey(gen int64) string {
	return snapshotKeyPrefix + strconv.FormatInt(gen, 10)
}
