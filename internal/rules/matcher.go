package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

// Matches 判断策略条件是否命中请求。
// 未设置的条件组不参与组合；任何畸形数据都视为不命中。
func Matches(p *model.Policy, req *TransferRequest) bool {
	if p == nil || req == nil {
		return false
	}

	results := make([]bool, 0, 5)
	if p.Initiator != nil {
		results = append(results, matchInitiator(p.Initiator, req))
	}
	if p.SourceWallet != nil {
		results = append(results, matchSourceWallet(p.SourceWallet, req))
	}
	if p.Destination != nil {
		results = append(results, matchDestination(p.Destination, req))
	}
	if p.Amount != nil {
		results = append(results, matchAmount(p.Amount, req.AmountUSD))
	}
	if p.Asset != nil {
		results = append(results, matchAsset(p.Asset, req))
	}

	if len(results) == 0 {
		return true
	}

	switch p.ConditionLogic {
	case model.ConditionLogicAnd:
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	case model.ConditionLogicOr:
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchInitiator(c *model.InitiatorCondition, req *TransferRequest) bool {
	switch c.Type {
	case model.InitiatorAny:
		return true
	case model.InitiatorUser:
		return model.ContainsFold(c.Values, req.Initiator)
	case model.InitiatorGroup:
		for _, g := range req.InitiatorGroups {
			if model.ContainsFold(c.Values, g) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchSourceWallet(c *model.SourceWalletCondition, req *TransferRequest) bool {
	switch c.Type {
	case model.SourceWalletAny:
		return true
	case model.SourceWalletSpecific:
		return model.ContainsFold(c.Wallets, req.SourceWallet)
	default:
		return false
	}
}

func matchDestination(c *model.DestinationCondition, req *TransferRequest) bool {
	switch c.Type {
	case model.DestinationAny:
		return true
	case model.DestinationInternal:
		return req.DestinationIsInternal
	case model.DestinationExternal:
		return !req.DestinationIsInternal
	case model.DestinationWhitelist:
		return model.ContainsFold(c.Values, req.Destination)
	default:
		return false
	}
}

func matchAsset(c *model.AssetCondition, req *TransferRequest) bool {
	switch c.Type {
	case model.AssetAny:
		return true
	case model.AssetSpecific:
		return model.ContainsFold(c.Values, req.Asset)
	default:
		return false
	}
}

func matchAmount(c *model.AmountCondition, amountUSD string) bool {
	if c.Condition == model.AmountAny {
		return true
	}

	amount, ok := parseDecimal(amountUSD)
	if !ok {
		return false
	}

	switch c.Condition {
	case model.AmountAbove:
		min, ok := parseDecimal(c.Min)
		return ok && amount.GreaterThan(min)
	case model.AmountBelow:
		max, ok := parseDecimal(c.Max)
		return ok && amount.LessThan(max)
	case model.AmountBetween:
		min, okMin := parseDecimal(c.Min)
		max, okMax := parseDecimal(c.Max)
		if !okMin || !okMax {
			return false
		}
		return amount.GreaterThanOrEqual(min) && amount.LessThanOrEqual(max)
	default:
		return false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ValidAmount 检查金额条件的边界值能否解析
func ValidAmount(c *model.AmountCondition) bool {
	switch c.Condition {
	case model.AmountAny:
		return true
	case model.AmountAbove:
		_, ok := parseDecimal(c.Min)
		return ok
	case model.AmountBelow:
		_, ok := parseDecimal(c.Max)
		return ok
	case model.AmountBetween:
		min, okMin := parseDecimal(c.Min)
		max, okMax := parseDecimal(c.Max)
		return okMin && okMax && min.LessThanOrEqual(max)
	}
	return false
}
