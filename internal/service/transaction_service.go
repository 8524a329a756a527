package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

const maxFailureReasonLength = 500

// TransactionService 交易审批
type TransactionService struct {
	emitter

	txRepo     *repository.TransactionRepository
	policyRepo *repository.PolicyRepository
	audit      *AuditService
	locker     lock.Locker
	dir        directory.Directory
}

// NewTransactionService 创建交易审批服务，dir 可以为 nil
func NewTransactionService(txRepo *repository.TransactionRepository, policyRepo *repository.PolicyRepository, audit *AuditService, locker lock.Locker, dir directory.Directory) *TransactionService {
	return &TransactionService{
		txRepo:     txRepo,
		policyRepo: policyRepo,
		audit:      audit,
		locker:     locker,
		dir:        dir,
	}
}

// CreateTransactionRequest 创建交易请求
type CreateTransactionRequest struct {
	Initiator    string `json:"initiator"`
	Amount       string `json:"amount"`
	Asset        string `json:"asset"`
	AmountUSD    string `json:"amount_usd"`
	SourceWallet string `json:"source_wallet"`
	Destination  string `json:"destination"`
	PolicyID     int64  `json:"policy_id"` // 命中的 require_approval 策略
}

// CreateTransaction 根据 require_approval 决策创建待审批交易。
// 法定人数和审批人名单在创建时复制，之后策略变更不影响已有交易。
func (s *TransactionService) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*model.Transaction, error) {
	if err := requireIdentity("initiator", req.Initiator); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, bizerr.Validation("amount", "amount must be a positive decimal")
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		return nil, bizerr.Validation("asset", "asset is required")
	}
	var amountUSD decimal.NullDecimal
	if raw := strings.TrimSpace(req.AmountUSD); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			return nil, bizerr.Validation("amount_usd", "amount_usd must be a non-negative decimal")
		}
		amountUSD = decimal.NewNullDecimal(v)
	}
	if req.PolicyID <= 0 {
		return nil, bizerr.Validation("policy_id", "policy_id is required")
	}
	if s.dir != nil {
		if _, err := s.dir.ResolveUser(ctx, req.Initiator); err != nil {
			return nil, bizerr.Validationf("initiator", "unknown user %q", req.Initiator)
		}
	}

	policy, err := s.policyRepo.GetByID(ctx, req.PolicyID, nil)
	if err != nil {
		return nil, toBizError(err)
	}
	if policy.Action != model.PolicyActionRequireApproval {
		return nil, bizerr.Validationf("policy_id", "policy %d does not require approval", policy.ID)
	}
	if !policy.IsActive {
		return nil, bizerr.Validationf("policy_id", "policy %d is not active", policy.ID)
	}

	tx := &model.Transaction{
		UserID:         req.Initiator,
		Amount:         amount,
		Asset:          asset,
		AmountUSD:      amountUSD,
		SourceWallet:   req.SourceWallet,
		Destination:    req.Destination,
		PolicyID:       policy.ID,
		PolicyName:     policy.Name,
		Status:         model.TransactionStatusPending,
		Approvals:      []string{},
		Approvers:      append([]string(nil), policy.Approvers...),
		QuorumRequired: policy.QuorumRequired,
	}
	err = s.txRepo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.txRepo.Create(ctx, tx); err != nil {
			return err
		}
		return s.audit.Record(ctx, model.AuditActionCreateTransaction, model.AuditResourceTransaction, tx.ID, req.Initiator, map[string]interface{}{
			"policy_id":       policy.ID,
			"amount":          amount.String(),
			"asset":           asset,
			"quorum_required": tx.QuorumRequired,
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(model.TransactionStatusPending)).Inc()
	s.emit(ctx, newTransactionEvent(EventTransactionCreated, tx, req.Initiator, map[string]string{
		"policy_id":       strconv.FormatInt(policy.ID, 10),
		"amount":          amount.String(),
		"asset":           asset,
		"quorum_required": strconv.Itoa(tx.QuorumRequired),
	}))

	logger.Info("transaction created",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("policy_id", policy.ID),
		zap.String("initiator", req.Initiator),
		zap.String("amount", amount.String()),
		zap.String("asset", asset),
		zap.Int("quorum_required", tx.QuorumRequired))
	return tx, nil
}

// ApproveTransaction 审批交易。
// 重复审批返回未修改的交易和 ErrDuplicateApproval，不计入法定人数。
func (s *TransactionService) ApproveTransaction(ctx context.Context, id int64, approver string) (*model.Transaction, error) {
	if err := requireIdentity("approver", approver); err != nil {
		return nil, err
	}
	approver = strings.TrimSpace(approver)

	var (
		tx        *model.Transaction
		duplicate bool
	)
	err := s.locker.WithLock(ctx, lock.TransactionKey(id), func(ctx context.Context) error {
		return s.txRepo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.txRepo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !current.IsPending() {
				return bizerr.ErrTransactionNotPending
			}
			if current.HasApproval(approver) {
				duplicate = true
				tx = current
				return nil
			}
			if !current.IsEligibleApprover(approver) {
				logger.Warn("transaction approver not in policy approvers",
					zap.Int64("transaction_id", id),
					zap.Int64("policy_id", current.PolicyID),
					zap.String("approver", approver))
			}

			now := time.Now().UnixMilli()
			current.Approvals = append(current.Approvals, approver)
			if err := s.txRepo.CreateApproval(ctx, &model.TransactionApproval{
				TransactionID: id,
				Approver:      approver,
				ApprovedAt:    now,
			}); err != nil {
				return err
			}
			if current.QuorumReached() {
				current.Status = model.TransactionStatusCompleted
				current.CompletedAt = now
			}
			if err := s.txRepo.Update(ctx, current); err != nil {
				return err
			}
			tx = current
			return s.audit.Record(ctx, model.AuditActionApproveTransaction, model.AuditResourceTransaction, id, approver, map[string]interface{}{
				"approvals": len(current.Approvals),
				"required":  current.QuorumRequired,
				"status":    current.Status,
			})
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	if duplicate {
		metrics.RecordApproval("transaction", "duplicate")
		logger.Info("duplicate transaction approval ignored",
			zap.Int64("transaction_id", id),
			zap.String("approver", approver))
		return tx, bizerr.ErrDuplicateApproval
	}

	data := map[string]string{
		"approvals": strconv.Itoa(len(tx.Approvals)),
		"required":  strconv.Itoa(tx.QuorumRequired),
	}
	events := []*Event{newTransactionEvent(EventTransactionApproved, tx, approver, data)}
	if tx.IsCompleted() {
		metrics.RecordApproval("transaction", "completed")
		metrics.TransactionsTotal.WithLabelValues(string(model.TransactionStatusCompleted)).Inc()
		events = append(events, newTransactionEvent(EventTransactionCompleted, tx, approver, data))
	} else {
		metrics.RecordApproval("transaction", "recorded")
	}
	s.emit(ctx, events...)

	logger.Info("transaction approved",
		zap.Int64("transaction_id", id),
		zap.String("approver", approver),
		zap.Int("approvals", len(tx.Approvals)),
		zap.Int("required", tx.QuorumRequired),
		zap.String("status", string(tx.Status)))
	return tx, nil
}

// FailTransaction 标记交易失败
// pending 交易可直接失败；completed 交易在记录链上哈希之前可因执行失败转为 failed
// 已有哈希的 completed 交易和 failed 交易不再变化
func (s *TransactionService) FailTransaction(ctx context.Context, id int64, reason, operator string) (*model.Transaction, error) {
	if err := requireIdentity("operator", operator); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, bizerr.Validation("reason", "reason is required")
	}
	if len(reason) > maxFailureReasonLength {
		return nil, bizerr.Validationf("reason", "reason exceeds %d characters", maxFailureReasonLength)
	}

	var tx *model.Transaction
	err := s.locker.WithLock(ctx, lock.TransactionKey(id), func(ctx context.Context) error {
		return s.txRepo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.txRepo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !current.CanFail() {
				return bizerr.ErrTransactionFinalized
			}
			previous := current.Status
			current.Status = model.TransactionStatusFailed
			current.FailureReason = reason
			if err := s.txRepo.Update(ctx, current); err != nil {
				return err
			}
			tx = current
			return s.audit.Record(ctx, model.AuditActionFailTransaction, model.AuditResourceTransaction, id, operator, map[string]interface{}{
				"reason":      reason,
				"from_status": previous,
			})
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(model.TransactionStatusFailed)).Inc()
	s.emit(ctx, newTransactionEvent(EventTransactionFailed, tx, operator, map[string]string{
		"reason": reason,
	}))

	logger.Warn("transaction failed",
		zap.Int64("transaction_id", id),
		zap.String("operator", operator),
		zap.String("reason", reason))
	return tx, nil
}

// AttachTxHash 为已完成的交易记录链上哈希，只能设置一次
func (s *TransactionService) AttachTxHash(ctx context.Context, id int64, hash, operator string) (*model.Transaction, error) {
	if err := requireIdentity("operator", operator); err != nil {
		return nil, err
	}
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, bizerr.Validation("tx_hash", "tx_hash is required")
	}

	var tx *model.Transaction
	err := s.locker.WithLock(ctx, lock.TransactionKey(id), func(ctx context.Context) error {
		return s.txRepo.Transaction(ctx, func(ctx context.Context) error {
			current, err := s.txRepo.GetByID(ctx, id, repository.ForUpdate)
			if err != nil {
				return err
			}
			if !current.IsCompleted() {
				return bizerr.ErrTransactionNotCompleted
			}
			if current.TxHash != "" {
				return bizerr.Validationf("tx_hash", "transaction already has hash %s", current.TxHash)
			}
			current.TxHash = hash
			if err := s.txRepo.Update(ctx, current); err != nil {
				return err
			}
			tx = current
			return s.audit.Record(ctx, model.AuditActionAttachTxHash, model.AuditResourceTransaction, id, operator, map[string]interface{}{
				"tx_hash": hash,
			})
		})
	})
	if err != nil {
		return nil, toBizError(err)
	}

	logger.Info("transaction hash attached",
		zap.Int64("transaction_id", id),
		zap.String("tx_hash", hash))
	return tx, nil
}

// GetTransaction 获取交易
func (s *TransactionService) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, id, nil)
	if err != nil {
		return nil, toBizError(err)
	}
	return tx, nil
}

// ListTransactions 分页查询交易
func (s *TransactionService) ListTransactions(ctx context.Context, filter *repository.TransactionFilter, pagination *repository.Pagination) ([]*model.Transaction, error) {
	txs, err := s.txRepo.List(ctx, filter, pagination)
	if err != nil {
		return nil, toBizError(err)
	}
	return txs, nil
}

// ListApprovals 交易审批记录，按审批时间排序
func (s *TransactionService) ListApprovals(ctx context.Context, id int64) ([]*model.TransactionApproval, error) {
	if _, err := s.txRepo.GetByID(ctx, id, nil); err != nil {
		return nil, toBizError(err)
	}
	approvals, err := s.txRepo.ListApprovals(ctx, id)
	if err != nil {
		return nil, toBizError(err)
	}
	return approvals, nil
}
