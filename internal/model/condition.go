package model

import "strings"

// ConditionLogic 条件组合方式
type ConditionLogic string

const (
	ConditionLogicAnd ConditionLogic = "AND"
	ConditionLogicOr  ConditionLogic = "OR"
)

// Valid 检查组合方式是否合法
func (l ConditionLogic) Valid() bool {
	return l == ConditionLogicAnd || l == ConditionLogicOr
}

// ConditionGroup 条件组名称，用于变更中清除某个条件组
type ConditionGroup string

const (
	ConditionGroupInitiator    ConditionGroup = "initiator"
	ConditionGroupSourceWallet ConditionGroup = "source_wallet"
	ConditionGroupDestination  ConditionGroup = "destination"
	ConditionGroupAmount       ConditionGroup = "amount"
	ConditionGroupAsset        ConditionGroup = "asset"
)

// Valid 检查条件组名称是否合法
func (g ConditionGroup) Valid() bool {
	switch g {
	case ConditionGroupInitiator, ConditionGroupSourceWallet, ConditionGroupDestination,
		ConditionGroupAmount, ConditionGroupAsset:
		return true
	}
	return false
}

// InitiatorKind 发起人条件类型
type InitiatorKind string

const (
	InitiatorAny   InitiatorKind = "any"
	InitiatorUser  InitiatorKind = "user"
	InitiatorGroup InitiatorKind = "group"
)

// InitiatorCondition 发起人条件
type InitiatorCondition struct {
	Type   InitiatorKind `json:"type"`
	Values []string      `json:"values,omitempty"`
}

// Valid 检查条件是否合法
func (c *InitiatorCondition) Valid() bool {
	switch c.Type {
	case InitiatorAny:
		return true
	case InitiatorUser, InitiatorGroup:
		return len(c.Values) > 0
	}
	return false
}

// SourceWalletKind 源钱包条件类型
type SourceWalletKind string

const (
	SourceWalletAny      SourceWalletKind = "any"
	SourceWalletSpecific SourceWalletKind = "specific"
)

// SourceWalletCondition 源钱包条件
type SourceWalletCondition struct {
	Type    SourceWalletKind `json:"type"`
	Wallets []string         `json:"wallets,omitempty"`
}

// Valid 检查条件是否合法
func (c *SourceWalletCondition) Valid() bool {
	switch c.Type {
	case SourceWalletAny:
		return true
	case SourceWalletSpecific:
		return len(c.Wallets) > 0
	}
	return false
}

// DestinationKind 目标地址条件类型
type DestinationKind string

const (
	DestinationAny       DestinationKind = "any"
	DestinationInternal  DestinationKind = "internal"
	DestinationExternal  DestinationKind = "external"
	DestinationWhitelist DestinationKind = "whitelist"
)

// DestinationCondition 目标地址条件
type DestinationCondition struct {
	Type   DestinationKind `json:"type"`
	Values []string        `json:"values,omitempty"`
}

// Valid 检查条件是否合法
func (c *DestinationCondition) Valid() bool {
	switch c.Type {
	case DestinationAny, DestinationInternal, DestinationExternal:
		return true
	case DestinationWhitelist:
		return len(c.Values) > 0
	}
	return false
}

// AmountKind 金额条件类型
type AmountKind string

const (
	AmountAny     AmountKind = "any"
	AmountAbove   AmountKind = "above"
	AmountBelow   AmountKind = "below"
	AmountBetween AmountKind = "between"
)

// AmountCondition 美元金额条件，边界值为十进制字符串
type AmountCondition struct {
	Condition AmountKind `json:"condition"`
	Min       string     `json:"min,omitempty"`
	Max       string     `json:"max,omitempty"`
}

// AssetKind 资产条件类型
type AssetKind string

const (
	AssetAny      AssetKind = "any"
	AssetSpecific AssetKind = "specific"
)

// AssetCondition 资产条件
type AssetCondition struct {
	Type   AssetKind `json:"type"`
	Values []string  `json:"values,omitempty"`
}

// Valid 检查条件是否合法
func (c *AssetCondition) Valid() bool {
	switch c.Type {
	case AssetAny:
		return true
	case AssetSpecific:
		return len(c.Values) > 0
	}
	return false
}

// ContainsName 审批身份按去除首尾空白后的字符串精确比较
func ContainsName(values []string, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, v := range values {
		if strings.TrimSpace(v) == name {
			return true
		}
	}
	return false
}

// ContainsFold 忽略大小写和首尾空白判断 values 是否包含 s，用于条件匹配
func ContainsFold(values []string, s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
