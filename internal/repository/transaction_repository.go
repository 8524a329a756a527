package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrApprovalExists      = errors.New("transaction approval already recorded")
)

// TransactionFilter 交易查询条件
type TransactionFilter struct {
	Status   model.TransactionStatus
	UserID   string
	PolicyID int64
}

// TransactionRepository 交易仓储
type TransactionRepository struct {
	*Repository
}

// NewTransactionRepository 创建交易仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{Repository: NewRepository(db)}
}

// Create 创建交易
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return r.DB(ctx).Create(tx).Error
}

// Update 整体更新交易
func (r *TransactionRepository) Update(ctx context.Context, tx *model.Transaction) error {
	result := r.DB(ctx).Model(tx).Select("*").Omit("id", "created_at").Updates(tx)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetByID 根据 ID 获取
func (r *TransactionRepository) GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Transaction, error) {
	var tx model.Transaction
	err := opts.ApplyLock(r.DB(ctx)).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// List 分页查询，新交易在前
func (r *TransactionRepository) List(ctx context.Context, filter *TransactionFilter, pagination *Pagination) ([]*model.Transaction, error) {
	var txs []*model.Transaction

	query := r.DB(ctx).Model(&model.Transaction{})
	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.PolicyID > 0 {
			query = query.Where("policy_id = ?", filter.PolicyID)
		}
	}

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("id DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// CreateApproval 追加审批记录
func (r *TransactionRepository) CreateApproval(ctx context.Context, a *model.TransactionApproval) error {
	if a.ApprovedAt == 0 {
		a.ApprovedAt = time.Now().UnixMilli()
	}
	if err := r.DB(ctx).Create(a).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrApprovalExists
		}
		return err
	}
	return nil
}

// ListApprovals 交易的审批记录，按时间顺序
func (r *TransactionRepository) ListApprovals(ctx context.Context, transactionID int64) ([]*model.TransactionApproval, error) {
	var approvals []*model.TransactionApproval
	err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		Order("approved_at ASC").
		Order("id ASC").
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}
