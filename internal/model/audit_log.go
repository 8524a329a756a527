package model

// AuditAction 审计操作类型
type AuditAction string

const (
	AuditActionCreatePolicy       AuditAction = "CREATE_POLICY"
	AuditActionTogglePolicy       AuditAction = "TOGGLE_POLICY"
	AuditActionReorderPolicies    AuditAction = "REORDER_POLICIES"
	AuditActionDeletePolicy       AuditAction = "DELETE_POLICY"
	AuditActionSubmitChange       AuditAction = "SUBMIT_CHANGE"
	AuditActionApproveChange      AuditAction = "APPROVE_CHANGE"
	AuditActionCommitChange       AuditAction = "COMMIT_CHANGE"
	AuditActionCreateTransaction  AuditAction = "CREATE_TRANSACTION"
	AuditActionApproveTransaction AuditAction = "APPROVE_TRANSACTION"
	AuditActionFailTransaction    AuditAction = "FAIL_TRANSACTION"
	AuditActionAttachTxHash       AuditAction = "ATTACH_TX_HASH"
)

// 审计资源类型
const (
	AuditResourcePolicy      = "policy"
	AuditResourceTransaction = "transaction"
)

// AuditLog 审计日志
type AuditLog struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Action       AuditAction `gorm:"column:action;type:varchar(50);index;not null" json:"action"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(20);not null" json:"resource_type"`
	ResourceID   int64       `gorm:"column:resource_id;type:bigint;index;not null" json:"resource_id"`
	Operator     string      `gorm:"column:operator;type:varchar(64)" json:"operator"`
	Detail       string      `gorm:"column:detail;type:jsonb" json:"detail"` // JSON 格式
	CreatedAt    int64       `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (AuditLog) TableName() string {
	return "policy_audit_logs"
}
