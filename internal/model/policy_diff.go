package model

// PolicyDiff 策略变更内容，所有字段可选，未出现的字段保持原值。
// 优先级和启用状态不属于变更内容。
type PolicyDiff struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Action         *PolicyAction   `json:"action,omitempty"`
	ConditionLogic *ConditionLogic `json:"condition_logic,omitempty"`

	Initiator    *InitiatorCondition    `json:"initiator,omitempty"`
	SourceWallet *SourceWalletCondition `json:"source_wallet,omitempty"`
	Destination  *DestinationCondition  `json:"destination,omitempty"`
	Amount       *AmountCondition       `json:"amount,omitempty"`
	Asset        *AssetCondition        `json:"asset,omitempty"`
	Clear        []ConditionGroup       `json:"clear,omitempty"` // 需要移除的条件组

	Approvers               *[]string `json:"approvers,omitempty"`
	QuorumRequired          *int      `json:"quorum_required,omitempty"`
	ChangeApproversList     *[]string `json:"change_approvers_list,omitempty"`
	ChangeApprovalsRequired *int      `json:"change_approvals_required,omitempty"`

	IsDeletion bool `json:"is_deletion,omitempty"`
}

// DeletionDiff 删除请求
func DeletionDiff() *PolicyDiff {
	return &PolicyDiff{IsDeletion: true}
}

// IsEmpty 不含任何变更
func (d *PolicyDiff) IsEmpty() bool {
	return !d.IsDeletion && d.Name == nil && d.Description == nil && d.Action == nil &&
		d.ConditionLogic == nil && d.Initiator == nil && d.SourceWallet == nil &&
		d.Destination == nil && d.Amount == nil && d.Asset == nil && len(d.Clear) == 0 &&
		d.Approvers == nil && d.QuorumRequired == nil && d.ChangeApproversList == nil &&
		d.ChangeApprovalsRequired == nil
}

// Clears 是否清除指定条件组
func (d *PolicyDiff) Clears(g ConditionGroup) bool {
	for _, c := range d.Clear {
		if c == g {
			return true
		}
	}
	return false
}

// ApplyTo 将变更合并到 base 的副本上，base 本身不变。
// 同一条件组既被设置又被清除时，清除优先。
func (d *PolicyDiff) ApplyTo(base *Policy) *Policy {
	p := base.Clone()
	if d == nil {
		return p
	}
	if d.Name != nil {
		p.Name = *d.Name
	}
	if d.Description != nil {
		p.Description = *d.Description
	}
	if d.Action != nil {
		p.Action = *d.Action
	}
	if d.ConditionLogic != nil {
		p.ConditionLogic = *d.ConditionLogic
	}

	if d.Initiator != nil {
		p.Initiator = d.Initiator.clone()
	}
	if d.SourceWallet != nil {
		p.SourceWallet = d.SourceWallet.clone()
	}
	if d.Destination != nil {
		p.Destination = d.Destination.clone()
	}
	if d.Amount != nil {
		p.Amount = d.Amount.clone()
	}
	if d.Asset != nil {
		p.Asset = d.Asset.clone()
	}
	for _, g := range d.Clear {
		switch g {
		case ConditionGroupInitiator:
			p.Initiator = nil
		case ConditionGroupSourceWallet:
			p.SourceWallet = nil
		case ConditionGroupDestination:
			p.Destination = nil
		case ConditionGroupAmount:
			p.Amount = nil
		case ConditionGroupAsset:
			p.Asset = nil
		}
	}

	if d.Approvers != nil {
		p.Approvers = cloneStrings(*d.Approvers)
	}
	if d.QuorumRequired != nil {
		p.QuorumRequired = *d.QuorumRequired
	}
	if d.ChangeApproversList != nil {
		p.ChangeApproversList = cloneStrings(*d.ChangeApproversList)
	}
	if d.ChangeApprovalsRequired != nil {
		p.ChangeApprovalsRequired = *d.ChangeApprovalsRequired
	}
	return p
}

// Clone 深拷贝
func (d *PolicyDiff) Clone() *PolicyDiff {
	if d == nil {
		return nil
	}
	c := *d
	c.Initiator = d.Initiator.clone()
	c.SourceWallet = d.SourceWallet.clone()
	c.Destination = d.Destination.clone()
	c.Amount = d.Amount.clone()
	c.Asset = d.Asset.clone()
	if d.Clear != nil {
		c.Clear = append([]ConditionGroup(nil), d.Clear...)
	}
	if d.Approvers != nil {
		s := cloneStrings(*d.Approvers)
		c.Approvers = &s
	}
	if d.ChangeApproversList != nil {
		s := cloneStrings(*d.ChangeApproversList)
		c.ChangeApproversList = &s
	}
	return &c
}
