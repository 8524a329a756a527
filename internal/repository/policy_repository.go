package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

var (
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrPolicyVersionExists  = errors.New("policy version already exists")
	ErrChangeApprovalExists = errors.New("change approval already recorded")
)

// PolicyRepository 策略仓储，负责优先级顺序和启用状态
type PolicyRepository struct {
	*Repository
}

// NewPolicyRepository 创建策略仓储
func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{Repository: NewRepository(db)}
}

// Create 创建策略
func (r *PolicyRepository) Create(ctx context.Context, p *model.Policy) error {
	return r.DB(ctx).Create(p).Error
}

// Update 整体更新策略，零值与 nil 条件组一并写入。
// 优先级只由 UpdatePriority 修改，这里不写。
func (r *PolicyRepository) Update(ctx context.Context, p *model.Policy) error {
	result := r.DB(ctx).Model(p).Select("*").Omit("id", "priority", "created_at").Updates(p)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// GetByID 根据 ID 获取
func (r *PolicyRepository) GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Policy, error) {
	var p model.Policy
	err := opts.ApplyLock(r.DB(ctx)).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List 按评估顺序返回全部策略
func (r *PolicyRepository) List(ctx context.Context) ([]*model.Policy, error) {
	var policies []*model.Policy
	err := r.DB(ctx).
		Order("priority ASC").
		Order("id ASC").
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

// ListActive 按评估顺序返回启用的策略
func (r *PolicyRepository) ListActive(ctx context.Context) ([]*model.Policy, error) {
	var policies []*model.Policy
	err := r.DB(ctx).
		Where("is_active = ?", true).
		Order("priority ASC").
		Order("id ASC").
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

// ListIDs 返回全部策略 ID
func (r *PolicyRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.DB(ctx).Model(&model.Policy{}).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MaxPriority 返回当前最大优先级值，没有策略时为 0
func (r *PolicyRepository) MaxPriority(ctx context.Context) (int, error) {
	var max int
	err := r.DB(ctx).Model(&model.Policy{}).Select("COALESCE(MAX(priority), 0)").Row().Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

// UpdatePriority 设置单个策略的优先级
func (r *PolicyRepository) UpdatePriority(ctx context.Context, id int64, priority int) error {
	result := r.DB(ctx).
		Model(&model.Policy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"priority":   priority,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// SetActive 设置启用状态
func (r *PolicyRepository) SetActive(ctx context.Context, id int64, active bool, status model.PolicyStatus) error {
	result := r.DB(ctx).
		Model(&model.Policy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"status":     status,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// Delete 删除策略
func (r *PolicyRepository) Delete(ctx context.Context, id int64) error {
	result := r.DB(ctx).Where("id = ?", id).Delete(&model.Policy{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// CreateVersion 记录版本快照
func (r *PolicyRepository) CreateVersion(ctx context.Context, v *model.PolicyVersion) error {
	if v.ChangedAt == 0 {
		v.ChangedAt = time.Now().UnixMilli()
	}
	if err := r.DB(ctx).Create(v).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrPolicyVersionExists
		}
		return err
	}
	return nil
}

// LatestVersion 返回最新版本号，没有版本时为 0
func (r *PolicyRepository) LatestVersion(ctx context.Context, policyID int64) (int, error) {
	var version int
	err := r.DB(ctx).
		Model(&model.PolicyVersion{}).
		Where("policy_id = ?", policyID).
		Select("COALESCE(MAX(version), 0)").
		Row().Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ListVersions 版本历史，新版本在前
func (r *PolicyRepository) ListVersions(ctx context.Context, policyID int64) ([]*model.PolicyVersion, error) {
	var versions []*model.PolicyVersion
	err := r.DB(ctx).
		Where("policy_id = ?", policyID).
		Order("version DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// CreateChangeApproval 追加变更审批记录
func (r *PolicyRepository) CreateChangeApproval(ctx context.Context, a *model.PolicyChangeApproval) error {
	if a.ApprovedAt == 0 {
		a.ApprovedAt = time.Now().UnixMilli()
	}
	if err := r.DB(ctx).Create(a).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrChangeApprovalExists
		}
		return err
	}
	return nil
}

// ListChangeApprovals 变更审批记录，changeID 为空时返回该策略全部记录
func (r *PolicyRepository) ListChangeApprovals(ctx context.Context, policyID int64, changeID string) ([]*model.PolicyChangeApproval, error) {
	var approvals []*model.PolicyChangeApproval
	query := r.DB(ctx).Where("policy_id = ?", policyID)
	if changeID != "" {
		query = query.Where("change_id = ?", changeID)
	}
	err := query.Order("approved_at ASC").Order("id ASC").Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}
