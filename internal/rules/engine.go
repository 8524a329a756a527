package rules

import (
	"fmt"
	"sort"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

// Engine 策略决策引擎，无状态，可并发使用
type Engine struct{}

// NewEngine 创建决策引擎
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate 按优先级评估启用的策略，第一个命中的策略决定结果。
// 没有策略命中时默认放行。
func (e *Engine) Evaluate(policies []*model.Policy, req *TransferRequest) *Decision {
	ordered := Ordered(policies)

	for _, p := range ordered {
		if !Matches(p, req) {
			continue
		}
		d := &Decision{
			Action: p.Action,
			MatchedPolicy: &PolicyRef{
				ID:       p.ID,
				Name:     p.Name,
				Priority: p.Priority,
			},
			Reason:    fmt.Sprintf("matched policy %q (#%d, priority %d): %s", p.Name, p.ID, p.Priority, p.Action),
			Evaluated: len(ordered),
		}
		if p.Action == model.PolicyActionRequireApproval {
			d.Approvers = append([]string(nil), p.Approvers...)
			d.QuorumRequired = p.QuorumRequired
		}
		return d
	}

	return NewDefaultDecision(len(ordered))
}

// Ordered 过滤出启用的策略并按 (priority, id) 稳定排序，不修改入参
func Ordered(policies []*model.Policy) []*model.Policy {
	active := make([]*model.Policy, 0, len(policies))
	for _, p := range policies {
		if p != nil && p.IsActive {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return active
}
