package model

// PolicyChangeType 策略变更类型
type PolicyChangeType string

const (
	PolicyChangeTypeCreate  PolicyChangeType = "CREATE"
	PolicyChangeTypeUpdate  PolicyChangeType = "UPDATE"
	PolicyChangeTypeDelete  PolicyChangeType = "DELETE"
	PolicyChangeTypeEnable  PolicyChangeType = "ENABLE"
	PolicyChangeTypeDisable PolicyChangeType = "DISABLE"
)

// PolicyVersion 策略版本历史
type PolicyVersion struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	PolicyID       int64            `gorm:"column:policy_id;type:bigint;uniqueIndex:uk_policy_version;not null" json:"policy_id"`
	Version        int              `gorm:"column:version;type:int;uniqueIndex:uk_policy_version;not null" json:"version"`
	ChangeType     PolicyChangeType `gorm:"column:change_type;type:varchar(20);not null" json:"change_type"`
	ConfigSnapshot string           `gorm:"column:config_snapshot;type:jsonb;not null" json:"config_snapshot"` // 该版本的完整配置快照
	ChangeID       string           `gorm:"column:change_id;type:varchar(64)" json:"change_id,omitempty"`
	ChangedBy      string           `gorm:"column:changed_by;type:varchar(64)" json:"changed_by"`
	ChangedAt      int64            `gorm:"column:changed_at;type:bigint;not null" json:"changed_at"`
}

// TableName 返回表名
func (PolicyVersion) TableName() string {
	return "policy_versions"
}

// PolicyChangeApproval 策略变更审批记录，只追加
type PolicyChangeApproval struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PolicyID   int64  `gorm:"column:policy_id;type:bigint;index;not null" json:"policy_id"`
	ChangeID   string `gorm:"column:change_id;type:varchar(64);uniqueIndex:uk_change_approver;not null" json:"change_id"`
	Approver   string `gorm:"column:approver;type:varchar(64);uniqueIndex:uk_change_approver;not null" json:"approver"`
	ApprovedAt int64  `gorm:"column:approved_at;type:bigint;not null" json:"approved_at"`
}

// TableName 返回表名
func (PolicyChangeApproval) TableName() string {
	return "policy_change_approvals"
}
