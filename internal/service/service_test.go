package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/rules"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
)

var testDBCounter int64

type testEnv struct {
	db           *gorm.DB
	policyRepo   *repository.PolicyRepository
	txRepo       *repository.TransactionRepository
	auditRepo    *repository.AuditLogRepository
	policies     *PolicyService
	changes      *ChangeApprovalService
	transactions *TransactionService
	decisions    *DecisionService
	invalidator  *countingInvalidator
	events       *eventRecorder
}

// countingInvalidator 记录缓存失效次数
type countingInvalidator struct {
	n int64
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	atomic.AddInt64(&c.n, 1)
	return nil
}

func (c *countingInvalidator) count() int64 {
	return atomic.LoadInt64(&c.n)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *eventRecorder) handle(_ context.Context, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func setupTestDB(t *testing.T) *gorm.DB {
	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:servicetest_%d?mode=memory&cache=shared&_busy_timeout=5000", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Policy{},
		&model.PolicyVersion{},
		&model.PolicyChangeApproval{},
		&model.Transaction{},
		&model.TransactionApproval{},
		&model.AuditLog{},
	))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func testDirectory() *directory.StaticDirectory {
	return directory.NewStaticDirectory(
		[]directory.UserEntry{
			{Name: "Meir", Groups: []string{"admins", "finance"}},
			{Name: "Lena", Groups: []string{"finance"}},
			{Name: "Dan", Groups: []string{"ops"}},
			{Name: "Alice", Groups: []string{"traders"}},
		},
		[]directory.WalletEntry{
			{Name: "Treasury", Address: "0x1111111111111111111111111111111111111111"},
			{Name: "Operations", Address: "0x2222222222222222222222222222222222222222"},
		},
	)
}

// setupTestEnv 组装服务，dir 为 nil 时不做目录校验
func setupTestEnv(t *testing.T, dir directory.Directory) *testEnv {
	db := setupTestDB(t)
	env := &testEnv{
		db:          db,
		policyRepo:  repository.NewPolicyRepository(db),
		txRepo:      repository.NewTransactionRepository(db),
		auditRepo:   repository.NewAuditLogRepository(db),
		invalidator: &countingInvalidator{},
		events:      &eventRecorder{},
	}
	audit := NewAuditService(env.auditRepo)
	locker := lock.NewMemoryLocker(5 * time.Second)

	env.policies = NewPolicyService(env.policyRepo, audit, locker, dir, env.invalidator)
	env.changes = NewChangeApprovalService(env.policyRepo, audit, locker, dir, env.invalidator)
	env.transactions = NewTransactionService(env.txRepo, env.policyRepo, audit, locker, dir)
	env.decisions = NewDecisionService(env.policyRepo, rules.NewEngine(), nil, dir)

	env.policies.SetOnEvent(env.events.handle)
	env.changes.SetOnEvent(env.events.handle)
	env.transactions.SetOnEvent(env.events.handle)
	return env
}

// largeTransferRequest 金额超过 10000 美元需要 Meir 和 Lena 共同审批
func largeTransferRequest() *CreatePolicyRequest {
	return &CreatePolicyRequest{
		Name:                    "Large transfers",
		Action:                  model.PolicyActionRequireApproval,
		Amount:                  &model.AmountCondition{Condition: model.AmountAbove, Min: "10000"},
		Approvers:               []string{"Meir", "Lena"},
		QuorumRequired:          2,
		ChangeApproversList:     []string{"Meir", "Lena", "Dan"},
		ChangeApprovalsRequired: 2,
		CreatedBy:               "Meir",
	}
}

func denyRequest(name string) *CreatePolicyRequest {
	return &CreatePolicyRequest{
		Name:                    name,
		Action:                  model.PolicyActionDeny,
		Asset:                   &model.AssetCondition{Type: model.AssetSpecific, Values: []string{"DOGE"}},
		ChangeApproversList:     []string{"Meir"},
		ChangeApprovalsRequired: 1,
		CreatedBy:               "Meir",
	}
}

func mustCreatePolicy(t *testing.T, env *testEnv, req *CreatePolicyRequest) *model.Policy {
	p, err := env.policies.CreatePolicy(context.Background(), req)
	require.NoError(t, err)
	return p
}

func errField(err error) string {
	var e *bizerr.Error
	if errors.As(err, &e) {
		return e.Field()
	}
	return ""
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
