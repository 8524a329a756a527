package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

func newPolicy(id int64, priority int, action model.PolicyAction) *model.Policy {
	return &model.Policy{
		ID:             id,
		Name:           "policy",
		Action:         action,
		Priority:       priority,
		IsActive:       true,
		ConditionLogic: model.ConditionLogicAnd,
	}
}

func baseRequest() *TransferRequest {
	return &TransferRequest{
		Initiator:             "Meir",
		InitiatorGroups:       []string{"finance"},
		SourceWallet:          "Treasury",
		Destination:           "0xabc",
		DestinationIsInternal: false,
		AmountUSD:             "15000",
		Asset:                 "ETH",
	}
}

func TestMatches_NoConditions(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)
	assert.True(t, Matches(p, baseRequest()))

	// 没有条件组时组合方式不影响结果
	p.ConditionLogic = model.ConditionLogicOr
	assert.True(t, Matches(p, baseRequest()))
}

func TestMatches_AnyVariantsAreTrue(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)
	p.Initiator = &model.InitiatorCondition{Type: model.InitiatorAny}
	p.SourceWallet = &model.SourceWalletCondition{Type: model.SourceWalletAny}
	p.Destination = &model.DestinationCondition{Type: model.DestinationAny}
	p.Amount = &model.AmountCondition{Condition: model.AmountAny}
	p.Asset = &model.AssetCondition{Type: model.AssetAny}

	req := baseRequest()
	req.AmountUSD = "not-a-number"
	assert.True(t, Matches(p, req))
}

func TestMatches_Amount(t *testing.T) {
	tests := []struct {
		name   string
		cond   model.AmountCondition
		amount string
		want   bool
	}{
		{"above strict", model.AmountCondition{Condition: model.AmountAbove, Min: "10000"}, "10000", false},
		{"above", model.AmountCondition{Condition: model.AmountAbove, Min: "10000"}, "10000.01", true},
		{"below strict", model.AmountCondition{Condition: model.AmountBelow, Max: "100"}, "100", false},
		{"below", model.AmountCondition{Condition: model.AmountBelow, Max: "100"}, "99.99", true},
		{"between lower bound", model.AmountCondition{Condition: model.AmountBetween, Min: "10", Max: "20"}, "10", true},
		{"between upper bound", model.AmountCondition{Condition: model.AmountBetween, Min: "10", Max: "20"}, "20", true},
		{"between outside", model.AmountCondition{Condition: model.AmountBetween, Min: "10", Max: "20"}, "20.000001", false},
		{"malformed amount", model.AmountCondition{Condition: model.AmountAbove, Min: "1"}, "12,000", false},
		{"empty amount", model.AmountCondition{Condition: model.AmountAbove, Min: "1"}, "", false},
		{"malformed bound", model.AmountCondition{Condition: model.AmountAbove, Min: "ten"}, "15000", false},
		{"missing bound", model.AmountCondition{Condition: model.AmountBetween, Min: "1"}, "5", false},
		{"unknown kind", model.AmountCondition{Condition: "around", Min: "1"}, "5", false},
		{"high precision", model.AmountCondition{Condition: model.AmountAbove, Min: "0.1"}, "0.10000000000000000001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPolicy(1, 1, model.PolicyActionDeny)
			cond := tt.cond
			p.Amount = &cond
			req := baseRequest()
			req.AmountUSD = tt.amount
			assert.Equal(t, tt.want, Matches(p, req))
		})
	}
}

func TestMatches_Initiator(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)

	p.Initiator = &model.InitiatorCondition{Type: model.InitiatorUser, Values: []string{" meir ", "Lena"}}
	assert.True(t, Matches(p, baseRequest()))

	p.Initiator = &model.InitiatorCondition{Type: model.InitiatorUser, Values: []string{"Lena"}}
	assert.False(t, Matches(p, baseRequest()))

	p.Initiator = &model.InitiatorCondition{Type: model.InitiatorGroup, Values: []string{"Finance"}}
	assert.True(t, Matches(p, baseRequest()))

	req := baseRequest()
	req.InitiatorGroups = nil
	assert.False(t, Matches(p, req))

	p.Initiator = &model.InitiatorCondition{Type: "robot"}
	assert.False(t, Matches(p, baseRequest()))
}

func TestMatches_Destination(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)
	req := baseRequest()

	p.Destination = &model.DestinationCondition{Type: model.DestinationExternal}
	assert.True(t, Matches(p, req))

	p.Destination = &model.DestinationCondition{Type: model.DestinationInternal}
	assert.False(t, Matches(p, req))
	req.DestinationIsInternal = true
	assert.True(t, Matches(p, req))

	p.Destination = &model.DestinationCondition{Type: model.DestinationWhitelist, Values: []string{"0xABC"}}
	assert.True(t, Matches(p, req))
	req.Destination = "0xdef"
	assert.False(t, Matches(p, req))
}

func TestMatches_SourceWalletAndAsset(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)
	p.SourceWallet = &model.SourceWalletCondition{Type: model.SourceWalletSpecific, Wallets: []string{"treasury"}}
	p.Asset = &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"eth", "USDC"}}
	assert.True(t, Matches(p, baseRequest()))

	req := baseRequest()
	req.Asset = "BTC"
	assert.False(t, Matches(p, req))

	req = baseRequest()
	req.SourceWallet = "Ops"
	assert.False(t, Matches(p, req))
}

func TestMatches_Combinator(t *testing.T) {
	p := newPolicy(1, 1, model.PolicyActionDeny)
	p.Asset = &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"BTC"}}
	p.Amount = &model.AmountCondition{Condition: model.AmountAbove, Min: "10000"}

	// AND: 资产不命中
	assert.False(t, Matches(p, baseRequest()))

	// OR: 金额命中即可
	p.ConditionLogic = model.ConditionLogicOr
	assert.True(t, Matches(p, baseRequest()))

	// OR: 全部不命中
	req := baseRequest()
	req.AmountUSD = "5"
	assert.False(t, Matches(p, req))

	// 畸形金额只影响金额条件本身
	req.Asset = "BTC"
	req.AmountUSD = "garbage"
	assert.True(t, Matches(p, req))

	p.ConditionLogic = "XOR"
	assert.False(t, Matches(p, baseRequest()))
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(&model.AmountCondition{Condition: model.AmountAny}))
	assert.True(t, ValidAmount(&model.AmountCondition{Condition: model.AmountAbove, Min: "1.5"}))
	assert.False(t, ValidAmount(&model.AmountCondition{Condition: model.AmountAbove}))
	assert.False(t, ValidAmount(&model.AmountCondition{Condition: model.AmountBelow, Max: "x"}))
	assert.True(t, ValidAmount(&model.AmountCondition{Condition: model.AmountBetween, Min: "1", Max: "1"}))
	assert.False(t, ValidAmount(&model.AmountCondition{Condition: model.AmountBetween, Min: "2", Max: "1"}))
	assert.False(t, ValidAmount(&model.AmountCondition{Condition: "sometimes"}))
}
