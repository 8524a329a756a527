// Package model 定义策略服务的数据模型
package model

// PolicyAction 策略动作
type PolicyAction string

const (
	PolicyActionAllow           PolicyAction = "allow"
	PolicyActionDeny            PolicyAction = "deny"
	PolicyActionRequireApproval PolicyAction = "require_approval"
)

// Valid 检查动作是否合法
func (a PolicyAction) Valid() bool {
	switch a {
	case PolicyActionAllow, PolicyActionDeny, PolicyActionRequireApproval:
		return true
	}
	return false
}

// PolicyStatus 策略治理状态
type PolicyStatus string

const (
	PolicyStatusActive          PolicyStatus = "active"           // 正常
	PolicyStatusPendingApproval PolicyStatus = "pending_approval" // 变更待审批
	PolicyStatusDraft           PolicyStatus = "draft"            // 草稿
)

// Policy 转账策略
type Policy struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string         `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description    string         `gorm:"column:description;type:varchar(512)" json:"description"`
	Action         PolicyAction   `gorm:"column:action;type:varchar(20);not null" json:"action"`
	Priority       int            `gorm:"column:priority;type:integer;index;not null" json:"priority"` // 数字越小越先评估
	IsActive       bool           `gorm:"column:is_active;not null;default:false" json:"is_active"`
	ConditionLogic ConditionLogic `gorm:"column:condition_logic;type:varchar(3);not null;default:'AND'" json:"condition_logic"`

	// 条件组，各自独立可空
	Initiator    *InitiatorCondition    `gorm:"column:initiator_condition;type:jsonb;serializer:json" json:"initiator,omitempty"`
	SourceWallet *SourceWalletCondition `gorm:"column:source_wallet_condition;type:jsonb;serializer:json" json:"source_wallet,omitempty"`
	Destination  *DestinationCondition  `gorm:"column:destination_condition;type:jsonb;serializer:json" json:"destination,omitempty"`
	Amount       *AmountCondition       `gorm:"column:amount_condition;type:jsonb;serializer:json" json:"amount,omitempty"`
	Asset        *AssetCondition        `gorm:"column:asset_condition;type:jsonb;serializer:json" json:"asset,omitempty"`

	// 交易审批配置，仅 require_approval 有效
	Approvers      []string `gorm:"column:approvers;type:jsonb;serializer:json" json:"approvers"`
	QuorumRequired int      `gorm:"column:quorum_required;type:integer;not null;default:0" json:"quorum_required"`

	// 变更治理配置
	ChangeApproversList     []string `gorm:"column:change_approvers_list;type:jsonb;serializer:json" json:"change_approvers_list"`
	ChangeApprovalsRequired int      `gorm:"column:change_approvals_required;type:integer;not null;default:1" json:"change_approvals_required"`

	// 待审批变更
	Status             PolicyStatus `gorm:"column:status;type:varchar(20);index;not null;default:'active'" json:"status"`
	PendingChanges     *PolicyDiff  `gorm:"column:pending_changes;type:jsonb;serializer:json" json:"pending_changes"`
	ChangeApprovers    []string     `gorm:"column:change_approvers;type:jsonb;serializer:json" json:"change_approvers"`
	PendingChangeID    string       `gorm:"column:pending_change_id;type:varchar(64)" json:"pending_change_id,omitempty"`
	PendingSubmittedBy string       `gorm:"column:pending_submitted_by;type:varchar(64)" json:"pending_submitted_by,omitempty"`
	PendingSubmittedAt int64        `gorm:"column:pending_submitted_at;type:bigint" json:"pending_submitted_at,omitempty"`

	CreatedBy string `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	CreatedAt int64  `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64  `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Policy) TableName() string {
	return "policies"
}

// IsPending 检查是否有待审批变更
func (p *Policy) IsPending() bool {
	return p.Status == PolicyStatusPendingApproval
}

// IsDraft 检查是否草稿
func (p *Policy) IsDraft() bool {
	return p.Status == PolicyStatusDraft
}

// HasChangeApprover 检查是否已签署当前待审批变更
func (p *Policy) HasChangeApprover(approver string) bool {
	return ContainsName(p.ChangeApprovers, approver)
}

// ChangeQuorumReached 检查变更是否达到法定人数
func (p *Policy) ChangeQuorumReached() bool {
	return len(p.ChangeApprovers) >= p.ChangeApprovalsRequired
}

// HasConditions 是否设置了任一条件组
func (p *Policy) HasConditions() bool {
	return p.Initiator != nil || p.SourceWallet != nil || p.Destination != nil ||
		p.Amount != nil || p.Asset != nil
}

// Clone 深拷贝
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	c.Initiator = p.Initiator.clone()
	c.SourceWallet = p.SourceWallet.clone()
	c.Destination = p.Destination.clone()
	c.Amount = p.Amount.clone()
	c.Asset = p.Asset.clone()
	c.Approvers = cloneStrings(p.Approvers)
	c.ChangeApproversList = cloneStrings(p.ChangeApproversList)
	c.ChangeApprovers = cloneStrings(p.ChangeApprovers)
	c.PendingChanges = p.PendingChanges.Clone()
	return &c
}

// ClearPending 清除待审批状态
func (p *Policy) ClearPending() {
	p.Status = PolicyStatusActive
	p.PendingChanges = nil
	p.ChangeApprovers = nil
	p.PendingChangeID = ""
	p.PendingSubmittedBy = ""
	p.PendingSubmittedAt = 0
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func (c *InitiatorCondition) clone() *InitiatorCondition {
	if c == nil {
		return nil
	}
	return &InitiatorCondition{Type: c.Type, Values: cloneStrings(c.Values)}
}

func (c *SourceWalletCondition) clone() *SourceWalletCondition {
	if c == nil {
		return nil
	}
	return &SourceWalletCondition{Type: c.Type, Wallets: cloneStrings(c.Wallets)}
}

func (c *DestinationCondition) clone() *DestinationCondition {
	if c == nil {
		return nil
	}
	return &DestinationCondition{Type: c.Type, Values: cloneStrings(c.Values)}
}

func (c *AmountCondition) clone() *AmountCondition {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (c *AssetCondition) clone() *AssetCondition {
	if c == nil {
		return nil
	}
	return &AssetCondition{Type: c.Type, Values: cloneStrings(c.Values)}
}
