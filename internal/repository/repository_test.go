package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
)

var testDBCounter int64

// setupTestDB 每个测试使用唯一的命名内存数据库，单连接保证事务内外看到同一状态
func setupTestDB(t *testing.T) *gorm.DB {
	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:repotest_%d?mode=memory&cache=shared&_busy_timeout=5000", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(
		&model.Policy{},
		&model.PolicyVersion{},
		&model.PolicyChangeApproval{},
		&model.Transaction{},
		&model.TransactionApproval{},
		&model.AuditLog{},
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

func createTestPolicy(t *testing.T, repo *PolicyRepository, name string, priority int) *model.Policy {
	p := &model.Policy{
		Name:                    name,
		Action:                  model.PolicyActionDeny,
		Priority:                priority,
		IsActive:                true,
		ConditionLogic:          model.ConditionLogicAnd,
		ChangeApproversList:     []string{"Meir"},
		ChangeApprovalsRequired: 1,
		Status:                  model.PolicyStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestPolicyRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	p := &model.Policy{
		Name:                    "Large ETH",
		Action:                  model.PolicyActionRequireApproval,
		Priority:                1,
		IsActive:                true,
		ConditionLogic:          model.ConditionLogicOr,
		Amount:                  &model.AmountCondition{Condition: model.AmountAbove, Min: "10000"},
		Asset:                   &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"ETH"}},
		Approvers:               []string{"Meir", "Lena"},
		QuorumRequired:          2,
		ChangeApproversList:     []string{"Meir", "Lena"},
		ChangeApprovalsRequired: 2,
		Status:                  model.PolicyStatusActive,
	}
	require.NoError(t, repo.Create(ctx, p))
	require.NotZero(t, p.ID)
	assert.NotZero(t, p.CreatedAt)

	got, err := repo.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Large ETH", got.Name)
	require.NotNil(t, got.Amount)
	assert.Equal(t, "10000", got.Amount.Min)
	assert.Equal(t, []string{"ETH"}, got.Asset.Values)
	// 未设置的条件组保持为空
	assert.Nil(t, got.Initiator)
	assert.Nil(t, got.SourceWallet)
	assert.Nil(t, got.Destination)
	assert.Nil(t, got.PendingChanges)
	assert.Equal(t, []string{"Meir", "Lena"}, got.Approvers)

	_, err = repo.GetByID(ctx, 999, ForUpdate)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestPolicyRepository_UpdateClearsGroupsAndStoresDiff(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	p := createTestPolicy(t, repo, "p1", 1)
	p.Asset = &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"BTC"}}
	require.NoError(t, repo.Update(ctx, p))

	name := "renamed"
	p.Asset = nil
	p.IsActive = false
	p.Status = model.PolicyStatusPendingApproval
	p.PendingChanges = &model.PolicyDiff{Name: &name, Clear: []model.ConditionGroup{model.ConditionGroupAmount}}
	p.ChangeApprovers = []string{"Meir"}
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.Asset)
	assert.False(t, got.IsActive)
	assert.Equal(t, model.PolicyStatusPendingApproval, got.Status)
	require.NotNil(t, got.PendingChanges)
	assert.Equal(t, "renamed", *got.PendingChanges.Name)
	assert.True(t, got.PendingChanges.Clears(model.ConditionGroupAmount))
	assert.Equal(t, []string{"Meir"}, got.ChangeApprovers)

	missing := &model.Policy{ID: 404, Name: "x"}
	assert.ErrorIs(t, repo.Update(ctx, missing), ErrPolicyNotFound)
}

func TestPolicyRepository_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	c := createTestPolicy(t, repo, "c", 2)
	a := createTestPolicy(t, repo, "a", 1)
	b := createTestPolicy(t, repo, "b", 2)
	inactive := createTestPolicy(t, repo, "inactive", 0)
	require.NoError(t, repo.SetActive(ctx, inactive.ID, false, model.PolicyStatusActive))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []int64{inactive.ID, a.ID, c.ID, b.ID}, []int64{all[0].ID, all[1].ID, all[2].ID, all[3].ID})

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, a.ID, active[0].ID)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	max, err := repo.MaxPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, max)
}

func TestPolicyRepository_MaxPriorityEmpty(t *testing.T) {
	repo := NewPolicyRepository(setupTestDB(t))
	max, err := repo.MaxPriority(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestPolicyRepository_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	p1 := createTestPolicy(t, repo, "p1", 1)
	p2 := createTestPolicy(t, repo, "p2", 2)

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.UpdatePriority(ctx, p1.ID, 2))
		require.NoError(t, repo.UpdatePriority(ctx, p2.ID, 1))
		if err := repo.UpdatePriority(ctx, 999, 3); err != nil {
			assert.ErrorIs(t, err, ErrPolicyNotFound)
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	got1, _ := repo.GetByID(ctx, p1.ID, nil)
	got2, _ := repo.GetByID(ctx, p2.ID, nil)
	assert.Equal(t, 1, got1.Priority)
	assert.Equal(t, 2, got2.Priority)
}

func TestPolicyRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	p := createTestPolicy(t, repo, "p", 1)
	require.NoError(t, repo.Delete(ctx, p.ID))
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrPolicyNotFound)
	_, err := repo.GetByID(ctx, p.ID, nil)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestPolicyRepository_Versions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	v, err := repo.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, repo.CreateVersion(ctx, &model.PolicyVersion{PolicyID: 1, Version: 1, ChangeType: model.PolicyChangeTypeCreate, ConfigSnapshot: "{}"}))
	require.NoError(t, repo.CreateVersion(ctx, &model.PolicyVersion{PolicyID: 1, Version: 2, ChangeType: model.PolicyChangeTypeUpdate, ConfigSnapshot: "{}"}))
	err = repo.CreateVersion(ctx, &model.PolicyVersion{PolicyID: 1, Version: 2, ChangeType: model.PolicyChangeTypeUpdate, ConfigSnapshot: "{}"})
	assert.ErrorIs(t, err, ErrPolicyVersionExists)

	v, err = repo.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	versions, err := repo.ListVersions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
}

func TestPolicyRepository_ChangeApprovals(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateChangeApproval(ctx, &model.PolicyChangeApproval{PolicyID: 1, ChangeID: "c1", Approver: "Meir", ApprovedAt: 1}))
	require.NoError(t, repo.CreateChangeApproval(ctx, &model.PolicyChangeApproval{PolicyID: 1, ChangeID: "c1", Approver: "Lena", ApprovedAt: 2}))
	require.NoError(t, repo.CreateChangeApproval(ctx, &model.PolicyChangeApproval{PolicyID: 1, ChangeID: "c2", Approver: "Meir", ApprovedAt: 3}))

	err := repo.CreateChangeApproval(ctx, &model.PolicyChangeApproval{PolicyID: 1, ChangeID: "c1", Approver: "Meir"})
	assert.ErrorIs(t, err, ErrChangeApprovalExists)

	c1, err := repo.ListChangeApprovals(ctx, 1, "c1")
	require.NoError(t, err)
	require.Len(t, c1, 2)
	assert.Equal(t, "Meir", c1[0].Approver)

	all, err := repo.ListChangeApprovals(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
