package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// PolicyService 策略管理
// 创建、启停和重排直接生效；内容修改和删除走 ChangeApprovalService
type PolicyService struct {
	emitter

	repo   *repository.PolicyRepository
	audit  *AuditService
	locker lock.Locker
	dir    directory.Directory
	cache  CacheInvalidator
}

// NewPolicyService 创建策略服务，dir 和 cache 可以为 nil
func NewPolicyService(repo *repository.PolicyRepository, audit *AuditService, locker lock.Locker, dir directory.Directory, cache CacheInvalidator) *PolicyService {
	return &PolicyService{
		repo:   repo,
		audit:  audit,
		locker: locker,
		dir:    dir,
		cache:  cache,
	}
}

// CreatePolicyRequest 创建策略请求
type CreatePolicyRequest struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Action         model.PolicyAction   `json:"action"`
	Priority       *int                 `json:"priority,omitempty"`  // 为空时排在最后
	IsActive       *bool                `json:"is_active,omitempty"` // 默认启用
	ConditionLogic model.ConditionLogic `json:"condition_logic"`     // 默认 AND

	Initiator    *model.InitiatorCondition    `json:"initiator,omitempty"`
	SourceWallet *model.SourceWalletCondition `json:"source_wallet,omitempty"`
	Destination  *model.DestinationCondition  `json:"destination,omitempty"`
	Amount       *model.AmountCondition       `json:"amount,omitempty"`
	Asset        *model.AssetCondition        `json:"asset,omitempty"`

	Approvers               []string `json:"approvers"`
	QuorumRequired          int      `json:"quorum_required"`
	ChangeApproversList     []string `json:"change_approvers_list"`
	ChangeApprovalsRequired int      `json:"change_approvals_required"`

	Draft     bool   `json:"draft"` // 草稿不参与评估，可直接删除
	CreatedBy string `json:"created_by"`
}

func (r *CreatePolicyRequest) toPolicy() *model.Policy {
	p := &model.Policy{
		Name:                    r.Name,
		Description:             r.Description,
		Action:                  r.Action,
		IsActive:                true,
		ConditionLogic:          r.ConditionLogic,
		Initiator:               r.Initiator,
		SourceWallet:            r.SourceWallet,
		Destination:             r.Destination,
		Amount:                  r.Amount,
		Asset:                   r.Asset,
		Approvers:               r.Approvers,
		QuorumRequired:          r.QuorumRequired,
		ChangeApproversList:     r.ChangeApproversList,
		ChangeApprovalsRequired: r.ChangeApprovalsRequired,
		Status:                  model.PolicyStatusActive,
		CreatedBy:               r.CreatedBy,
	}
	if p.ConditionLogic == "" {
		p.ConditionLogic = model.ConditionLogicAnd
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	if r.Draft {
		p.Status = model.PolicyStatusDraft
		p.IsActive = false
	}
	if p.Action != model.PolicyActionRequireApproval {
		p.QuorumRequired = 0
	}
	return p.Clone()
}

// CreatePolicy 创建策略，直接生效
func (s *PolicyService) CreatePolicy(ctx context.Context, req *CreatePolicyRequest) (*model.Policy, error) {
	if req == nil {
		return nil, bizerr.Validation("body", "request is required")
	}
	if err := requireIdentity("created_by", req.CreatedBy); err != nil {
		return nil, err
	}
	p := req.toPolicy()
	if err := validatePolicy(ctx, p, s.dir); err != nil {
		return nil, err
	}

	err := s.locker.WithLock(ctx, lock.PolicySetKey, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			if req.Priority != nil {
				p.Priority = *req.Priority
			} else {
				max, err := s.repo.MaxPriority(ctx)
				if err != nil {
					return err
				}
				p.Priority = max + 1
			}

			if err := s.repo.Create(ctx, p); err != nil {
				return err
			}
			if err := recordVersion(ctx, s.repo, p, model.PolicyChangeTypeCreate, "", req.CreatedBy); err != nil {
				return err
			}
			return s.audit.Record(ctx, model.AuditActionCreatePolicy, model.AuditResourcePolicy, p.ID, req.CreatedBy, p)
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	if p.IsActive {
		invalidateCache(ctx, s.cache)
	}
	metrics.RecordMutation("create")
	s.emit(ctx, newPolicyEvent(EventPolicyCreated, p, req.CreatedBy, map[string]string{
		"name":   p.Name,
		"action": string(p.Action),
		"status": string(p.Status),
	}))

	logger.Info("policy created",
		zap.Int64("policy_id", p.ID),
		zap.String("name", p.Name),
		zap.String("action", string(p.Action)),
		zap.Int("priority", p.Priority),
		zap.String("status", string(p.Status)))
	return p, nil
}

// ListPolicies 按评估顺序返回全部策略
func (s *PolicyService) ListPolicies(ctx context.Context) ([]*model.Policy, error) {
	policies, err := s.repo.List(ctx)
	if err != nil {
		return nil, toBizError(err)
	}
	return policies, nil
}

// GetPolicy 获取策略
func (s *PolicyService) GetPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	p, err := s.repo.GetByID(ctx, id, nil)
	if err != nil {
		return nil, toBizError(err)
	}
	return p, nil
}

// TogglePolicy 切换启用状态，不需要变更审批。草稿被启用时转为正常策略
func (s *PolicyService) TogglePolicy(ctx context.Context, id int64, operator string) (*model.Policy, error) {
	if err := requireIdentity("operator", operator); err != nil {
		return nil, err
	}

	var p *model.Policy
	err := s.locker.WithLock(ctx, lock.PolicyKey(id), func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.repo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}

			active := !current.IsActive
			status := current.Status
			if active && current.IsDraft() {
				status = model.PolicyStatusActive
			}
			if err := s.repo.SetActive(ctx, id, active, status); err != nil {
				return err
			}

			current.IsActive = active
			current.Status = status
			changeType := model.PolicyChangeTypeDisable
			if active {
				changeType = model.PolicyChangeTypeEnable
			}
			if err := recordVersion(ctx, s.repo, current, changeType, "", operator); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, model.AuditActionTogglePolicy, model.AuditResourcePolicy, id, operator, map[string]interface{}{
				"is_active": active,
				"status":    status,
			}); err != nil {
				return err
			}
			p = current
			return nil
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	invalidateCache(ctx, s.cache)
	metrics.RecordMutation("toggle")
	s.emit(ctx, newPolicyEvent(EventPolicyToggled, p, operator, map[string]string{
		"is_active": strconv.FormatBool(p.IsActive),
	}))

	logger.Info("policy toggled",
		zap.Int64("policy_id", id),
		zap.Bool("is_active", p.IsActive),
		zap.String("operator", operator))
	return p, nil
}

// ReorderPolicies 按给定顺序重排优先级，不需要变更审批。
// orderedIDs 必须恰好是当前全部策略 ID，否则不做任何修改。
func (s *PolicyService) ReorderPolicies(ctx context.Context, orderedIDs []int64, operator string) ([]*model.Policy, error) {
	if err := requireIdentity("operator", operator); err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, bizerr.Validation("ordered_ids", "ordered_ids must not be empty")
	}
	seen := make(map[int64]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := seen[id]; ok {
			return nil, bizerr.Validationf("ordered_ids", "duplicate policy id %d", id)
		}
		seen[id] = struct{}{}
	}

	var policies []*model.Policy
	err := s.locker.WithLock(ctx, lock.PolicySetKey, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.repo.ListIDs(ctx)
			if err != nil {
				return err
			}
			if len(current) != len(orderedIDs) {
				return bizerr.Validationf("ordered_ids", "expected %d policy ids, got %d", len(current), len(orderedIDs))
			}
			for _, id := range current {
				if _, ok := seen[id]; !ok {
					return bizerr.Validationf("ordered_ids", "policy %d is missing", id)
				}
			}

			for i, id := range orderedIDs {
				if err := s.repo.UpdatePriority(ctx, id, i+1); err != nil {
					if errors.Is(err, repository.ErrPolicyNotFound) {
						return bizerr.Validationf("ordered_ids", "unknown policy id %d", id)
					}
					return err
				}
			}
			if err := s.audit.Record(ctx, model.AuditActionReorderPolicies, model.AuditResourcePolicy, 0, operator, map[string]interface{}{
				"ordered_ids": orderedIDs,
			}); err != nil {
				return err
			}

			policies, err = s.repo.List(ctx)
			return err
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	invalidateCache(ctx, s.cache)
	metrics.RecordMutation("reorder")
	s.emit(ctx, newEvent(EventPoliciesReordered, model.AuditResourcePolicy, 0, operator, map[string]string{
		"count": strconv.Itoa(len(orderedIDs)),
	}))

	logger.Info("policies reordered",
		zap.Int("count", len(orderedIDs)),
		zap.String("operator", operator))
	return policies, nil
}

// DeletePolicy 直接删除草稿策略；其他策略须提交删除变更
func (s *PolicyService) DeletePolicy(ctx context.Context, id int64, operator string) error {
	if err := requireIdentity("operator", operator); err != nil {
		return err
	}

	var deleted *model.Policy
	err := s.locker.WithLock(ctx, lock.PolicyKey(id), func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			p, err := s.repo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !p.IsDraft() {
				return bizerr.ErrDirectDeleteDenied
			}
			if err := s.repo.Delete(ctx, id); err != nil {
				return err
			}
			if err := recordVersion(ctx, s.repo, p, model.PolicyChangeTypeDelete, "", operator); err != nil {
				return err
			}
			deleted = p
			return s.audit.Record(ctx, model.AuditActionDeletePolicy, model.AuditResourcePolicy, id, operator, nil)
		})
	})
	if err != nil {
		return toBizError(err)
	}

	metrics.RecordMutation("delete")
	s.emit(ctx, newPolicyEvent(EventPolicyDeleted, deleted, operator, map[string]string{"draft": "true"}))

	logger.Info("draft policy deleted",
		zap.Int64("policy_id", id),
		zap.String("operator", operator))
	return nil
}

// ListVersions 策略版本历史，策略删除后仍可查询
func (s *PolicyService) ListVersions(ctx context.Context, id int64) ([]*model.PolicyVersion, error) {
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, toBizError(err)
	}
	if len(versions) == 0 {
		return nil, bizerr.ErrPolicyNotFound
	}
	return versions, nil
}
