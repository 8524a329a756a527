package model

import "github.com/shopspring/decimal"

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"   // 待审批
	TransactionStatusCompleted TransactionStatus = "completed" // 达到法定人数
	TransactionStatusFailed    TransactionStatus = "failed"    // 失败
)

// Transaction 待授权的转账
type Transaction struct {
	ID             int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string              `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"` // 发起人
	Amount         decimal.Decimal     `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Asset          string              `gorm:"column:asset;type:varchar(20);not null" json:"asset"`
	AmountUSD      decimal.NullDecimal `gorm:"column:amount_usd;type:decimal(36,18)" json:"amount_usd"`
	SourceWallet   string              `gorm:"column:source_wallet;type:varchar(128)" json:"source_wallet"`
	Destination    string              `gorm:"column:destination;type:varchar(128)" json:"destination"`
	PolicyID       int64               `gorm:"column:policy_id;type:bigint;index;not null" json:"policy_id"`
	PolicyName     string              `gorm:"column:policy_name;type:varchar(128)" json:"policy_name"`
	Status         TransactionStatus   `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	TxHash         string              `gorm:"column:tx_hash;type:varchar(128)" json:"tx_hash,omitempty"`
	FailureReason  string              `gorm:"column:failure_reason;type:varchar(500)" json:"failure_reason,omitempty"`
	Approvals      []string            `gorm:"column:approvals;type:jsonb;serializer:json" json:"approvals"`
	Approvers      []string            `gorm:"column:approvers;type:jsonb;serializer:json" json:"approvers"` // 创建时的审批人快照
	QuorumRequired int                 `gorm:"column:quorum_required;type:integer;not null" json:"quorum_required"`
	CompletedAt    int64               `gorm:"column:completed_at;type:bigint" json:"completed_at,omitempty"`
	CreatedAt      int64               `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt      int64               `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Transaction) TableName() string {
	return "transactions"
}

// IsPending 检查是否待审批
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// IsCompleted 检查是否已完成
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// CanFail 待审批，或已完成但尚未上链的交易可以标记失败
func (t *Transaction) CanFail() bool {
	return t.IsPending() || (t.IsCompleted() && t.TxHash == "")
}

// HasApproval 检查审批人是否已审批
func (t *Transaction) HasApproval(approver string) bool {
	return ContainsName(t.Approvals, approver)
}

// QuorumReached 检查是否达到法定人数
func (t *Transaction) QuorumReached() bool {
	return len(t.Approvals) >= t.QuorumRequired
}

// IsEligibleApprover 审批人是否在创建时的审批人名单中
func (t *Transaction) IsEligibleApprover(approver string) bool {
	return ContainsName(t.Approvers, approver)
}

// TransactionApproval 交易审批记录，只追加
type TransactionApproval struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID int64  `gorm:"column:transaction_id;type:bigint;uniqueIndex:uk_tx_approver;not null" json:"transaction_id"`
	Approver      string `gorm:"column:approver;type:varchar(64);uniqueIndex:uk_tx_approver;not null" json:"approver"`
	ApprovedAt    int64  `gorm:"column:approved_at;type:bigint;not null" json:"approved_at"`
}

// TableName 返回表名
func (TransactionApproval) TableName() string {
	return "transaction_approvals"
}
