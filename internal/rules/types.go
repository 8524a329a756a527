// Package rules 定义转账策略的条件匹配与决策引擎
package rules

import (
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

// DefaultReason 没有策略命中时的决策原因
const DefaultReason = "no matching policy"

// TransferRequest 待评估的转账请求
type TransferRequest struct {
	Initiator             string   `json:"initiator"`
	InitiatorGroups       []string `json:"initiator_groups,omitempty"` // 发起人所属分组，由目录服务补全
	SourceWallet          string   `json:"source_wallet"`
	Destination           string   `json:"destination"`
	DestinationIsInternal bool     `json:"destination_is_internal"` // 由调用方判定
	AmountUSD             string   `json:"amount_usd"`              // 十进制字符串
	Asset                 string   `json:"asset"`
	Amount                string   `json:"amount,omitempty"` // 资产数量，仅用于创建交易
}

// PolicyRef 命中策略的摘要
type PolicyRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Decision 决策结果
type Decision struct {
	Action         model.PolicyAction `json:"action"`
	MatchedPolicy  *PolicyRef         `json:"matched_policy"`
	Reason         string             `json:"reason"`
	Approvers      []string           `json:"approvers,omitempty"`
	QuorumRequired int                `json:"quorum_required,omitempty"`
	Evaluated      int                `json:"evaluated"` // 参与评估的启用策略数
}

// NewDefaultDecision 默认放行
func NewDefaultDecision(evaluated int) *Decision {
	return &Decision{
		Action:    model.PolicyActionAllow,
		Reason:    DefaultReason,
		Evaluated: evaluated,
	}
}

// IsDefault 是否为默认决策
func (d *Decision) IsDefault() bool {
	return d.MatchedPolicy == nil
}

// RequiresApproval 是否需要审批
func (d *Decision) RequiresApproval() bool {
	return d.Action == model.PolicyActionRequireApproval
}
