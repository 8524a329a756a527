package service

import (
	"context"
	"encoding/json"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
)

// AuditService 审计日志
// Record 在调用方的事务内写入，审计与状态变更一起提交或回滚
type AuditService struct {
	repo *repository.AuditLogRepository
}

// NewAuditService 创建审计服务
func NewAuditService(repo *repository.AuditLogRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record 写入一条审计日志
func (s *AuditService) Record(ctx context.Context, action model.AuditAction, resourceType string, resourceID int64, operator string, detail interface{}) error {
	detailJSON := "{}"
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		detailJSON = string(data)
	}

	return s.repo.Create(ctx, &model.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Operator:     operator,
		Detail:       detailJSON,
	})
}

// ListAuditLogs 分页查询审计日志
func (s *AuditService) ListAuditLogs(ctx context.Context, filter *repository.AuditLogFilter, pagination *repository.Pagination) ([]*model.AuditLog, error) {
	logs, err := s.repo.List(ctx, filter, pagination)
	if err != nil {
		return nil, bizerr.Wrap(bizerr.ErrInternal, err)
	}
	return logs, nil
}
