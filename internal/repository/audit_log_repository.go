package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

// AuditLogFilter 审计日志查询条件
type AuditLogFilter struct {
	Action       model.AuditAction
	ResourceType string
	ResourceID   int64
	Operator     string
}

// AuditLogRepository 审计日志仓储
type AuditLogRepository struct {
	*Repository
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{Repository: NewRepository(db)}
}

// Create 写入审计日志
func (r *AuditLogRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt == 0 {
		log.CreatedAt = time.Now().UnixMilli()
	}
	if log.Detail == "" {
		log.Detail = "{}"
	}
	return r.DB(ctx).Create(log).Error
}

// List 分页查询，新记录在前
func (r *AuditLogRepository) List(ctx context.Context, filter *AuditLogFilter, pagination *Pagination) ([]*model.AuditLog, error) {
	var logs []*model.AuditLog

	query := r.DB(ctx).Model(&model.AuditLog{})
	if filter != nil {
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.ResourceType != "" {
			query = query.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID > 0 {
			query = query.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.Operator != "" {
			query = query.Where("operator = ?", filter.Operator)
		}
	}

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("id DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
