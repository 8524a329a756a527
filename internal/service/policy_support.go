package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// CacheInvalidator 策略变更提交后使快照失效
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// invalidateCache 变更已提交，失效失败不回滚，旧快照在其 TTL 到期后消失
func invalidateCache(ctx context.Context, cache CacheInvalidator) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		metrics.PolicyCacheTotal.WithLabelValues("invalidate_error").Inc()
		logger.Error("invalidate policy cache failed, stale snapshot may be served until it expires", zap.Error(err))
	}
}

// recordVersion 记录策略版本快照，须在事务内调用
func recordVersion(ctx context.Context, repo *repository.PolicyRepository, p *model.Policy, changeType model.PolicyChangeType, changeID, changedBy string) error {
	latest, err := repo.LatestVersion(ctx, p.ID)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return repo.CreateVersion(ctx, &model.PolicyVersion{
		PolicyID:       p.ID,
		Version:        latest + 1,
		ChangeType:     changeType,
		ConfigSnapshot: string(snapshot),
		ChangeID:       changeID,
		ChangedBy:      changedBy,
	})
}

// toBizError 仓储与锁错误转换为业务错误
func toBizError(err error) error {
	if err == nil {
		return nil
	}
	var bizErr *bizerr.Error
	switch {
	case errors.As(err, &bizErr):
		return err
	case errors.Is(err, repository.ErrPolicyNotFound):
		return bizerr.ErrPolicyNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return bizerr.ErrTransactionNotFound
	case errors.Is(err, repository.ErrApprovalExists), errors.Is(err, repository.ErrChangeApprovalExists):
		return bizerr.ErrDuplicateApproval
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return bizerr.Wrap(bizerr.ErrTimeout, err)
	default:
		return bizerr.Wrap(bizerr.ErrInternal, err)
	}
}
