package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
)

func TestChangeApprovalService_SubmitAndCommit(t *testing.T) {
	env := setupTestEnv(t, testDirectory())
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	diff := &model.PolicyDiff{
		Amount: &model.AmountCondition{Condition: model.AmountAbove, Min: "50000"},
	}
	pending, err := env.changes.SubmitChange(ctx, p.ID, diff, "Dan")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyStatusPendingApproval, pending.Status)
	assert.NotEmpty(t, pending.PendingChangeID)
	assert.Empty(t, pending.ChangeApprovers)
	// 内容字段在审批通过前不变
	assert.Equal(t, "10000", pending.Amount.Min)

	first, err := env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)
	assert.False(t, first.Committed)
	assert.Equal(t, 1, first.Approvals)
	assert.Equal(t, 2, first.Required)
	assert.Equal(t, model.PolicyStatusPendingApproval, first.Policy.Status)
	assert.Equal(t, "10000", first.Policy.Amount.Min)

	second, err := env.changes.ApproveChange(ctx, p.ID, "Lena")
	require.NoError(t, err)
	assert.True(t, second.Committed)
	assert.False(t, second.Deleted)

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyStatusActive, got.Status)
	assert.Equal(t, "50000", got.Amount.Min)
	assert.Nil(t, got.PendingChanges)
	assert.Empty(t, got.ChangeApprovers)
	assert.Empty(t, got.PendingChangeID)
	assert.Equal(t, p.Priority, got.Priority)

	versions, err := env.policies.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, model.PolicyChangeTypeUpdate, versions[0].ChangeType)
	assert.Equal(t, pending.PendingChangeID, versions[0].ChangeID)

	approvals, err := env.changes.ListChangeApprovals(ctx, p.ID, pending.PendingChangeID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, "Meir", approvals[0].Approver)
	assert.Equal(t, "Lena", approvals[1].Approver)

	assert.Contains(t, env.events.types(), EventChangeCommitted)
}

// 合并只修改变更中出现的字段
func TestChangeApprovalService_ExactMerge(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()

	req := largeTransferRequest()
	req.ChangeApprovalsRequired = 1
	req.Description = "treasury guard"
	req.Asset = &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"ETH"}}
	req.Destination = &model.DestinationCondition{Type: model.DestinationExternal}
	p := mustCreatePolicy(t, env, req)

	diff := &model.PolicyDiff{
		Name:  strPtr("Large ETH transfers"),
		Clear: []model.ConditionGroup{model.ConditionGroupDestination},
	}
	_, err := env.changes.SubmitChange(ctx, p.ID, diff, "Dan")
	require.NoError(t, err)
	res, err := env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)
	require.True(t, res.Committed)

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Large ETH transfers", got.Name)
	assert.Nil(t, got.Destination)
	assert.Equal(t, "treasury guard", got.Description)
	assert.Equal(t, model.PolicyActionRequireApproval, got.Action)
	assert.Equal(t, []string{"ETH"}, got.Asset.Values)
	assert.Equal(t, "10000", got.Amount.Min)
	assert.Equal(t, []string{"Meir", "Lena"}, got.Approvers)
	assert.Equal(t, 2, got.QuorumRequired)
	assert.Equal(t, p.IsActive, got.IsActive)
}

// 单人审批同样先进入待审批状态
func TestChangeApprovalService_SingleApproverStillPending(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, denyRequest("Block DOGE"))

	pending, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{Description: strPtr("memecoins")}, "Meir")
	require.NoError(t, err)
	assert.True(t, pending.IsPending())

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Description)
}

func TestChangeApprovalService_DeletionViaApproval(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	pending, err := env.changes.SubmitDeletion(ctx, p.ID, "Dan")
	require.NoError(t, err)
	assert.True(t, pending.PendingChanges.IsDeletion)

	res, err := env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)
	assert.False(t, res.Committed)

	_, err = env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)

	res, err = env.changes.ApproveChange(ctx, p.ID, "Lena")
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.True(t, res.Deleted)

	_, err = env.policies.GetPolicy(ctx, p.ID)
	assert.True(t, bizerr.IsNotFound(err))

	versions, err := env.policies.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyChangeTypeDelete, versions[0].ChangeType)

	// 已删除的策略不能再审批
	_, err = env.changes.ApproveChange(ctx, p.ID, "Dan")
	assert.ErrorIs(t, err, bizerr.ErrPolicyNotFound)
	assert.Contains(t, env.events.types(), EventPolicyDeleted)
}

func TestChangeApprovalService_DuplicateApprovalIsNoop(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	_, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{QuorumRequired: intPtr(1)}, "Dan")
	require.NoError(t, err)

	_, err = env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)

	res, err := env.changes.ApproveChange(ctx, p.ID, " Meir ")
	assert.ErrorIs(t, err, bizerr.ErrDuplicateApproval)
	assert.True(t, bizerr.IsDuplicate(err))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Approvals)
	assert.False(t, res.Committed)
	assert.True(t, res.Policy.IsPending())

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Meir"}, got.ChangeApprovers)
	assert.Equal(t, 2, got.QuorumRequired)
}

// 大小写不同的名字按不同签署人计数
func TestChangeApprovalService_ApproverIdentityIsExact(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	_, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{QuorumRequired: intPtr(1)}, "Dan")
	require.NoError(t, err)
	_, err = env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)

	res, err := env.changes.ApproveChange(ctx, p.ID, "meir")
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.Policy.QuorumRequired)
}

func TestChangeApprovalService_NotPending(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, denyRequest("Block DOGE"))

	_, err := env.changes.ApproveChange(ctx, p.ID, "Meir")
	assert.ErrorIs(t, err, bizerr.ErrChangeNotPending)
	assert.True(t, bizerr.IsNotFound(err))

	_, err = env.changes.SubmitChange(ctx, 404, &model.PolicyDiff{Name: strPtr("x")}, "Meir")
	assert.ErrorIs(t, err, bizerr.ErrPolicyNotFound)
}

func TestChangeApprovalService_InvalidDiff(t *testing.T) {
	env := setupTestEnv(t, testDirectory())
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	tests := []struct {
		name  string
		diff  *model.PolicyDiff
		field string
	}{
		{"nil diff", nil, "diff"},
		{"empty diff", &model.PolicyDiff{}, "diff"},
		{"deletion with fields", &model.PolicyDiff{IsDeletion: true, Name: strPtr("x")}, "is_deletion"},
		{"unknown clear group", &model.PolicyDiff{Clear: []model.ConditionGroup{"geo"}}, "clear"},
		{"quorum above approvers", &model.PolicyDiff{QuorumRequired: intPtr(5)}, "quorum_required"},
		{"bad action", &model.PolicyDiff{Action: func() *model.PolicyAction { a := model.PolicyAction("hold"); return &a }()}, "action"},
		{"unknown change approver", &model.PolicyDiff{ChangeApproversList: &[]string{"Meir", "Eve"}}, "change_approvers_list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.changes.SubmitChange(ctx, p.ID, tt.diff, "Dan")
			require.Error(t, err)
			assert.True(t, bizerr.IsValidation(err))
			assert.Equal(t, tt.field, errField(err))
		})
	}

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyStatusActive, got.Status)
}

// 重新提交替换旧变更并清空已有审批
func TestChangeApprovalService_ResubmitResetsApprovals(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	p := mustCreatePolicy(t, env, largeTransferRequest())

	first, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{Name: strPtr("v2")}, "Dan")
	require.NoError(t, err)
	_, err = env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)

	second, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{Name: strPtr("v3")}, "Dan")
	require.NoError(t, err)
	assert.NotEqual(t, first.PendingChangeID, second.PendingChangeID)
	assert.Empty(t, second.ChangeApprovers)
	assert.Equal(t, "v3", *second.PendingChanges.Name)

	res, err := env.changes.ApproveChange(ctx, p.ID, "Meir")
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, 1, res.Approvals)
}

// 并发审批只能提交一次
func TestChangeApprovalService_ConcurrentApprovalsCommitOnce(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()

	req := largeTransferRequest()
	req.ChangeApproversList = []string{"Meir", "Lena", "Dan", "Alice"}
	req.ChangeApprovalsRequired = 3
	p := mustCreatePolicy(t, env, req)
	_, err := env.changes.SubmitChange(ctx, p.ID, &model.PolicyDiff{Description: strPtr("reviewed")}, "Dan")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for _, approver := range req.ChangeApproversList {
		wg.Add(1)
		go func(approver string) {
			defer wg.Done()
			res, err := env.changes.ApproveChange(ctx, p.ID, approver)
			if err != nil {
				return
			}
			if res.Committed {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}(approver)
	}
	wg.Wait()

	assert.Equal(t, 1, committed)
	versions, err := env.policies.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	got, err := env.policies.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "reviewed", got.Description)
	assert.Equal(t, model.PolicyStatusActive, got.Status)
}
