package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// ChangeApprovalService 策略变更审批
// 修改和删除都先作为待审批变更保存，达到法定人数后原子提交
type ChangeApprovalService struct {
	emitter

	repo   *repository.PolicyRepository
	audit  *AuditService
	locker lock.Locker
	dir    directory.Directory
	cache  CacheInvalidator
}

// NewChangeApprovalService 创建变更审批服务，dir 和 cache 可以为 nil
func NewChangeApprovalService(repo *repository.PolicyRepository, audit *AuditService, locker lock.Locker, dir directory.Directory, cache CacheInvalidator) *ChangeApprovalService {
	return &ChangeApprovalService{
		repo:   repo,
		audit:  audit,
		locker: locker,
		dir:    dir,
		cache:  cache,
	}
}

// ChangeApprovalResult 变更审批结果
type ChangeApprovalResult struct {
	Policy    *model.Policy `json:"policy"`
	Approvals int           `json:"approvals"`
	Required  int           `json:"required"`
	Committed bool          `json:"committed"` // 已达到法定人数并提交
	Deleted   bool          `json:"deleted"`   // 提交的是删除
}

// SubmitChange 提交策略变更，替换尚未通过的旧变更。
// 即使只需要一个审批人也先进入待审批状态。
func (s *ChangeApprovalService) SubmitChange(ctx context.Context, id int64, diff *model.PolicyDiff, submitter string) (*model.Policy, error) {
	if err := requireIdentity("submitter", submitter); err != nil {
		return nil, err
	}
	if err := validateDiff(diff); err != nil {
		return nil, err
	}
	diff = diff.Clone()

	var p *model.Policy
	var replaced string
	err := s.locker.WithLock(ctx, lock.PolicyKey(id), func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.repo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !diff.IsDeletion {
				if err := validatePolicy(ctx, diff.ApplyTo(current), s.dir); err != nil {
					return err
				}
			}

			replaced = current.PendingChangeID
			current.Status = model.PolicyStatusPendingApproval
			current.PendingChanges = diff
			current.ChangeApprovers = []string{}
			current.PendingChangeID = uuid.New().String()
			current.PendingSubmittedBy = submitter
			current.PendingSubmittedAt = time.Now().UnixMilli()
			if err := s.repo.Update(ctx, current); err != nil {
				return err
			}

			if err := s.audit.Record(ctx, model.AuditActionSubmitChange, model.AuditResourcePolicy, id, submitter, map[string]interface{}{
				"change_id":          current.PendingChangeID,
				"replaced_change":    replaced,
				"diff":               diff,
				"approvals_required": current.ChangeApprovalsRequired,
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

	metrics.RecordMutation("submit_change")
	s.emit(ctx, newPolicyEvent(EventChangeSubmitted, p, submitter, map[string]string{
		"change_id":   p.PendingChangeID,
		"is_deletion": strconv.FormatBool(diff.IsDeletion),
	}))

	logger.Info("policy change submitted",
		zap.Int64("policy_id", id),
		zap.String("change_id", p.PendingChangeID),
		zap.String("replaced_change", replaced),
		zap.Bool("is_deletion", diff.IsDeletion),
		zap.String("submitter", submitter))
	return p, nil
}

// SubmitDeletion 提交删除请求，与普通变更走同一审批流程
func (s *ChangeApprovalService) SubmitDeletion(ctx context.Context, id int64, submitter string) (*model.Policy, error) {
	return s.SubmitChange(ctx, id, model.DeletionDiff(), submitter)
}

// ApproveChange 审批待审批变更。
// 重复审批返回未修改的策略和 ErrDuplicateApproval；达到法定人数时合并或删除。
func (s *ChangeApprovalService) ApproveChange(ctx context.Context, id int64, approver string) (*ChangeApprovalResult, error) {
	if err := requireIdentity("approver", approver); err != nil {
		return nil, err
	}
	approver = strings.TrimSpace(approver)

	var (
		result    *ChangeApprovalResult
		changeID  string
		duplicate bool
	)
	err := s.locker.WithLock(ctx, lock.PolicyKey(id), func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			p, err := s.repo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !p.IsPending() || p.PendingChanges == nil {
				return bizerr.ErrChangeNotPending
			}
			changeID = p.PendingChangeID

			if p.HasChangeApprover(approver) {
				duplicate = true
				result = &ChangeApprovalResult{
					Policy:    p,
					Approvals: len(p.ChangeApprovers),
					Required:  p.ChangeApprovalsRequired,
				}
				return nil
			}
			if !model.ContainsName(p.ChangeApproversList, approver) {
				logger.Warn("change approver not in change approvers list",
					zap.Int64("policy_id", id),
					zap.String("change_id", changeID),
					zap.String("approver", approver))
			}

			now := time.Now().UnixMilli()
			p.ChangeApprovers = append(p.ChangeApprovers, approver)
			if err := s.repo.CreateChangeApproval(ctx, &model.PolicyChangeApproval{
				PolicyID:   id,
				ChangeID:   changeID,
				Approver:   approver,
				ApprovedAt: now,
			}); err != nil {
				return err
			}

			result = &ChangeApprovalResult{
				Approvals: len(p.ChangeApprovers),
				Required:  p.ChangeApprovalsRequired,
			}
			if !p.ChangeQuorumReached() {
				if err := s.repo.Update(ctx, p); err != nil {
					return err
				}
				result.Policy = p
				return s.audit.Record(ctx, model.AuditActionApproveChange, model.AuditResourcePolicy, id, approver, map[string]interface{}{
					"change_id": changeID,
					"approvals": result.Approvals,
					"required":  result.Required,
				})
			}

			result.Committed = true
			if p.PendingChanges.IsDeletion {
				result.Deleted = true
				result.Policy = p
				if err := s.repo.Delete(ctx, id); err != nil {
					return err
				}
				if err := recordVersion(ctx, s.repo, p, model.PolicyChangeTypeDelete, changeID, approver); err != nil {
					return err
				}
			} else {
				merged := p.PendingChanges.ApplyTo(p)
				merged.ClearPending()
				if err := validatePolicy(ctx, merged, s.dir); err != nil {
					return err
				}
				if err := s.repo.Update(ctx, merged); err != nil {
					return err
				}
				if err := recordVersion(ctx, s.repo, merged, model.PolicyChangeTypeUpdate, changeID, approver); err != nil {
					return err
				}
				result.Policy = merged
			}
			return s.audit.Record(ctx, model.AuditActionCommitChange, model.AuditResourcePolicy, id, approver, map[string]interface{}{
				"change_id": changeID,
				"approvers": p.ChangeApprovers,
				"deleted":   result.Deleted,
			})
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	if duplicate {
		metrics.RecordApproval("change", "duplicate")
		logger.Info("duplicate change approval ignored",
			zap.Int64("policy_id", id),
			zap.String("change_id", changeID),
			zap.String("approver", approver))
		return result, bizerr.ErrDuplicateApproval
	}

	events := []*Event{newPolicyEvent(EventChangeApproved, result.Policy, approver, map[string]string{
		"change_id": changeID,
		"approvals": strconv.Itoa(result.Approvals),
		"required":  strconv.Itoa(result.Required),
	})}
	if result.Committed {
		invalidateCache(ctx, s.cache)
		metrics.RecordApproval("change", "committed")
		metrics.RecordMutation("commit_change")

		eventType := EventChangeCommitted
		if result.Deleted {
			eventType = EventPolicyDeleted
		}
		events = append(events, newPolicyEvent(eventType, result.Policy, approver, map[string]string{
			"change_id": changeID,
		}))
	} else {
		metrics.RecordApproval("change", "recorded")
	}
	s.emit(ctx, events...)

	logger.Info("policy change approved",
		zap.Int64("policy_id", id),
		zap.String("change_id", changeID),
		zap.String("approver", approver),
		zap.Int("approvals", result.Approvals),
		zap.Int("required", result.Required),
		zap.Bool("committed", result.Committed),
		zap.Bool("deleted", result.Deleted))
	return result, nil
}

// ListChangeApprovals 变更审批记录，changeID 为空时返回该策略全部记录
func (s *ChangeApprovalService) ListChangeApprovals(ctx context.Context, id int64, changeID string) ([]*model.PolicyChangeApproval, error) {
	approvals, err := s.repo.ListChangeApprovals(ctx, id, changeID)
	if err != nil {
		return nil, toBizError(err)
	}
	return approvals, nil
}
