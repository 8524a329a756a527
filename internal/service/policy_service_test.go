package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
)

func TestPolicyService_CreatePolicy(t *testing.T) {
	env := setupTestEnv(t, testDirectory())
	ctx := context.Background()

	first := mustCreatePolicy(t, env, largeTransferRequest())
	second := mustCreatePolicy(t, env, denyRequest("Block DOGE"))

	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, 2, second.Priority)
	assert.True(t, first.IsActive)
	assert.Equal(t, model.PolicyStatusActive, first.Status)
	assert.Equal(t, model.ConditionLogicAnd, first.ConditionLogic)
	assert.Equal(t, 0, second.QuorumRequired)

	got, err := env.policies.GetPolicy(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "10000", got.Amount.Min)
	assert.Equal(t, []string{"Meir", "Lena"}, got.Approvers)

	versions, err := env.policies.ListVersions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, model.PolicyChangeTypeCreate, versions[0].ChangeType)

	logs, err := env.auditRepo.List(ctx, &repository.AuditLogFilter{Action: model.AuditActionCreatePolicy}, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	assert.Equal(t, int64(2), env.invalidator.count())
	assert.Equal(t, []EventType{EventPolicyCreated, EventPolicyCreated}, env.events.types())
}

func TestPolicyService_CreatePolicyValidation(t *testing.T) {
	env := setupTestEnv(t, testDirectory())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *CreatePolicyRequest)
		field  string
	}{
		{"empty name", func(r *CreatePolicyRequest) { r.Name = "  " }, "name"},
		{"unknown action", func(r *CreatePolicyRequest) { r.Action = "block" }, "action"},
		{"unknown logic", func(r *CreatePolicyRequest) { r.ConditionLogic = "XOR" }, "condition_logic"},
		{"quorum too large", func(r *CreatePolicyRequest) { r.QuorumRequired = 3 }, "quorum_required"},
		{"quorum zero", func(r *CreatePolicyRequest) { r.QuorumRequired = 0 }, "quorum_required"},
		{"no approvers", func(r *CreatePolicyRequest) { r.Approvers = nil }, "approvers"},
		{"duplicate approvers", func(r *CreatePolicyRequest) { r.Approvers = []string{"Meir", "meir"} }, "approvers"},
		{"no change approvers", func(r *CreatePolicyRequest) { r.ChangeApproversList = nil }, "change_approvers_list"},
		{"change quorum too large", func(r *CreatePolicyRequest) { r.ChangeApprovalsRequired = 4 }, "change_approvals_required"},
		{"between reversed", func(r *CreatePolicyRequest) {
			r.Amount = &model.AmountCondition{Condition: model.AmountBetween, Min: "500", Max: "100"}
		}, "amount"},
		{"malformed amount", func(r *CreatePolicyRequest) {
			r.Amount = &model.AmountCondition{Condition: model.AmountAbove, Min: "ten"}
		}, "amount"},
		{"unknown approver", func(r *CreatePolicyRequest) { r.Approvers = []string{"Meir", "Mallory"} }, "approvers"},
		{"unknown wallet", func(r *CreatePolicyRequest) {
			r.SourceWallet = &model.SourceWalletCondition{Type: model.SourceWalletSpecific, Wallets: []string{"Cold"}}
		}, "source_wallet"},
		{"missing creator", func(r *CreatePolicyRequest) { r.CreatedBy = "" }, "created_by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := largeTransferRequest()
			tt.mutate(req)
			_, err := env.policies.CreatePolicy(ctx, req)
			require.Error(t, err)
			assert.True(t, bizerr.IsValidation(err))
			assert.Equal(t, tt.field, errField(err))
		})
	}

	policies, err := env.policies.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestPolicyService_GetPolicyNotFound(t *testing.T) {
	env := setupTestEnv(t, nil)

	_, err := env.policies.GetPolicy(context.Background(), 42)
	assert.True(t, bizerr.IsNotFound(err))
	assert.ErrorIs(t, err, bizerr.ErrPolicyNotFound)
}

func TestPolicyService_TogglePolicy(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, denyRequest("Block DOGE"))

	off, err := env.policies.TogglePolicy(ctx, p.ID, "Dan")
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	on, err := env.policies.TogglePolicy(ctx, p.ID, "Dan")
	require.NoError(t, err)
	assert.True(t, on.IsActive)

	versions, err := env.policies.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, model.PolicyChangeTypeEnable, versions[0].ChangeType)
	assert.Equal(t, model.PolicyChangeTypeDisable, versions[1].ChangeType)

	_, err = env.policies.TogglePolicy(ctx, 999, "Dan")
	assert.True(t, bizerr.IsNotFound(err))
}

func TestPolicyService_DraftLifecycle(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()

	req := denyRequest("Draft rule")
	req.Draft = true
	draft := mustCreatePolicy(t, env, req)
	assert.Equal(t, model.PolicyStatusDraft, draft.Status)
	assert.False(t, draft.IsActive)

	active := mustCreatePolicy(t, env, denyRequest("Live rule"))
	err := env.policies.DeletePolicy(ctx, active.ID, "Meir")
	assert.ErrorIs(t, err, bizerr.ErrDirectDeleteDenied)

	promoted, err := env.policies.TogglePolicy(ctx, draft.ID, "Meir")
	require.NoError(t, err)
	assert.True(t, promoted.IsActive)
	assert.Equal(t, model.PolicyStatusActive, promoted.Status)

	req = denyRequest("Throwaway")
	req.Draft = true
	throwaway := mustCreatePolicy(t, env, req)
	require.NoError(t, env.policies.DeletePolicy(ctx, throwaway.ID, "Meir"))

	_, err = env.policies.GetPolicy(ctx, throwaway.ID)
	assert.True(t, bizerr.IsNotFound(err))

	versions, err := env.policies.ListVersions(ctx, throwaway.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyChangeTypeDelete, versions[0].ChangeType)
}

func TestPolicyService_ReorderPolicies(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	a := mustCreatePolicy(t, env, denyRequest("A"))
	b := mustCreatePolicy(t, env, denyRequest("B"))
	c := mustCreatePolicy(t, env, denyRequest("C"))

	reordered, err := env.policies.ReorderPolicies(ctx, []int64{c.ID, a.ID, b.ID}, "Dan")
	require.NoError(t, err)
	require.Len(t, reordered, 3)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, []int64{reordered[0].ID, reordered[1].ID, reordered[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{reordered[0].Priority, reordered[1].Priority, reordered[2].Priority})
}

// 部分、重复或未知的 ID 列表不能修改任何优先级
func TestPolicyService_ReorderIsAllOrNothing(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	a := mustCreatePolicy(t, env, denyRequest("A"))
	b := mustCreatePolicy(t, env, denyRequest("B"))
	c := mustCreatePolicy(t, env, denyRequest("C"))

	invalid := map[string][]int64{
		"partial":   {c.ID, a.ID},
		"duplicate": {c.ID, c.ID, a.ID},
		"unknown":   {c.ID, a.ID, 999},
		"superset":  {c.ID, a.ID, b.ID, 999},
		"empty":     {},
	}
	for name, ids := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := env.policies.ReorderPolicies(ctx, ids, "Dan")
			require.Error(t, err)
			assert.True(t, bizerr.IsValidation(err))
			assert.Equal(t, "ordered_ids", errField(err))

			policies, err := env.policies.ListPolicies(ctx)
			require.NoError(t, err)
			require.Len(t, policies, 3)
			assert.Equal(t, a.ID, policies[0].ID)
			assert.Equal(t, 1, policies[0].Priority)
			assert.Equal(t, b.ID, policies[1].ID)
			assert.Equal(t, 2, policies[1].Priority)
			assert.Equal(t, c.ID, policies[2].ID)
			assert.Equal(t, 3, policies[2].Priority)
		})
	}
}

func TestPolicyService_ListVersionsUnknownPolicy(t *testing.T) {
	env := setupTestEnv(t, nil)

	_, err := env.policies.ListVersions(context.Background(), 7)
	assert.True(t, bizerr.IsNotFound(err))
}
