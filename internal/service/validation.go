package service

import (
	"context"
	"errors"
	"strings"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/rules"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
)

const maxNameLength = 128

// validatePolicy 校验策略完整配置，返回带字段名的校验错误
func validatePolicy(ctx context.Context, p *model.Policy, dir directory.Directory) error {
	if strings.TrimSpace(p.Name) == "" {
		return bizerr.Validation("name", "name is required")
	}
	if len(p.Name) > maxNameLength {
		return bizerr.Validationf("name", "name exceeds %d characters", maxNameLength)
	}
	if !p.Action.Valid() {
		return bizerr.Validationf("action", "unknown action %q", p.Action)
	}
	if !p.ConditionLogic.Valid() {
		return bizerr.Validationf("condition_logic", "unknown condition logic %q", p.ConditionLogic)
	}

	if p.Initiator != nil && !p.Initiator.Valid() {
		return bizerr.Validation("initiator", "invalid initiator condition")
	}
	if p.SourceWallet != nil && !p.SourceWallet.Valid() {
		return bizerr.Validation("source_wallet", "invalid source wallet condition")
	}
	if p.Destination != nil && !p.Destination.Valid() {
		return bizerr.Validation("destination", "invalid destination condition")
	}
	if p.Amount != nil && !rules.ValidAmount(p.Amount) {
		return bizerr.Validation("amount", "invalid amount condition")
	}
	if p.Asset != nil && !p.Asset.Valid() {
		return bizerr.Validation("asset", "invalid asset condition")
	}

	if p.Action == model.PolicyActionRequireApproval {
		if err := validateSigners("approvers", p.Approvers); err != nil {
			return err
		}
		if p.QuorumRequired < 1 || p.QuorumRequired > len(p.Approvers) {
			return bizerr.Validationf("quorum_required", "quorum must be between 1 and %d", len(p.Approvers))
		}
	}

	if err := validateSigners("change_approvers_list", p.ChangeApproversList); err != nil {
		return err
	}
	if p.ChangeApprovalsRequired < 1 || p.ChangeApprovalsRequired > len(p.ChangeApproversList) {
		return bizerr.Validationf("change_approvals_required", "change approvals must be between 1 and %d", len(p.ChangeApproversList))
	}

	if dir != nil {
		return validateAgainstDirectory(ctx, p, dir)
	}
	return nil
}

// validateSigners 签署人列表非空且不重复
func validateSigners(field string, signers []string) error {
	if len(signers) == 0 {
		return bizerr.Validationf(field, "%s must not be empty", field)
	}
	seen := make(map[string]struct{}, len(signers))
	for _, s := range signers {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			return bizerr.Validationf(field, "%s contains an empty name", field)
		}
		if _, ok := seen[key]; ok {
			return bizerr.Validationf(field, "%s contains duplicate %q", field, s)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// validateAgainstDirectory 审批人和指定用户、钱包必须能在目录中解析
func validateAgainstDirectory(ctx context.Context, p *model.Policy, dir directory.Directory) error {
	check := func(field string, names []string) error {
		for _, name := range names {
			if _, err := dir.ResolveUser(ctx, name); err != nil {
				if errors.Is(err, directory.ErrUserNotFound) {
					return bizerr.Validationf(field, "unknown user %q", name)
				}
				return bizerr.Wrap(bizerr.ErrInternal, err)
			}
		}
		return nil
	}

	if p.Action == model.PolicyActionRequireApproval {
		if err := check("approvers", p.Approvers); err != nil {
			return err
		}
	}
	if err := check("change_approvers_list", p.ChangeApproversList); err != nil {
		return err
	}
	if p.Initiator != nil && p.Initiator.Type == model.InitiatorUser {
		if err := check("initiator", p.Initiator.Values); err != nil {
			return err
		}
	}
	if p.SourceWallet != nil && p.SourceWallet.Type == model.SourceWalletSpecific {
		for _, w := range p.SourceWallet.Wallets {
			if _, err := dir.ResolveWallet(ctx, w); err != nil {
				if errors.Is(err, directory.ErrWalletNotFound) {
					return bizerr.Validationf("source_wallet", "unknown wallet %q", w)
				}
				return bizerr.Wrap(bizerr.ErrInternal, err)
			}
		}
	}
	return nil
}

// validateDiff 校验变更本身的结构，合并后的完整校验由 validatePolicy 完成
func validateDiff(diff *model.PolicyDiff) error {
	if diff == nil || diff.IsEmpty() {
		return bizerr.Validation("diff", "change must modify at least one field")
	}
	if diff.IsDeletion {
		fields := diff.Clone()
		fields.IsDeletion = false
		if !fields.IsEmpty() {
			return bizerr.Validation("is_deletion", "deletion must not carry field changes")
		}
	}
	for _, g := range diff.Clear {
		if !g.Valid() {
			return bizerr.Validationf("clear", "unknown condition group %q", g)
		}
	}
	return nil
}

func requireIdentity(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return bizerr.Validationf(field, "%s is required", field)
	}
	return nil
}
