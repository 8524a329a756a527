package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/rules"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// ActivePolicyCache 启用策略快照缓存
type ActivePolicyCache interface {
	Generation(ctx context.Context) (int64, error)
	GetActive(ctx context.Context, gen int64) ([]*model.Policy, bool, error)
	SetActive(ctx context.Context, gen int64, policies []*model.Policy) error
}

// DecisionService 转账决策模拟，只读
type DecisionService struct {
	repo   *repository.PolicyRepository
	engine *rules.Engine
	cache  ActivePolicyCache
	dir    directory.Directory
}

// NewDecisionService 创建决策服务，cache 和 dir 可以为 nil
func NewDecisionService(repo *repository.PolicyRepository, engine *rules.Engine, cache ActivePolicyCache, dir directory.Directory) *DecisionService {
	return &DecisionService{
		repo:   repo,
		engine: engine,
		cache:  cache,
		dir:    dir,
	}
}

// Simulate 评估转账请求，不创建交易也不写入任何状态
func (s *DecisionService) Simulate(ctx context.Context, req *rules.TransferRequest) (*rules.Decision, error) {
	if req == nil {
		return nil, bizerr.Validation("request", "transfer request is required")
	}

	start := time.Now()
	r := *req
	r.Initiator = strings.TrimSpace(r.Initiator)
	r.InitiatorGroups = append([]string(nil), req.InitiatorGroups...)
	if len(r.InitiatorGroups) == 0 && r.Initiator != "" && s.dir != nil {
		identity, err := s.dir.ResolveUser(ctx, r.Initiator)
		switch {
		case err == nil:
			r.InitiatorGroups = identity.Groups
		case errors.Is(err, directory.ErrUserNotFound):
			// 未登记的发起人没有分组，只能命中 any/user 条件
		default:
			logger.Warn("resolve initiator groups failed",
				zap.String("initiator", r.Initiator),
				zap.Error(err))
		}
	}

	policies, err := s.activePolicies(ctx)
	if err != nil {
		return nil, toBizError(err)
	}

	decision := s.engine.Evaluate(policies, &r)
	metrics.RecordDecision(string(decision.Action), !decision.IsDefault(), time.Since(start))

	fields := []zap.Field{
		zap.String("initiator", r.Initiator),
		zap.String("asset", strings.ToUpper(r.Asset)),
		zap.String("amount_usd", r.AmountUSD),
		zap.String("action", string(decision.Action)),
		zap.Int("evaluated", decision.Evaluated),
	}
	if decision.MatchedPolicy != nil {
		fields = append(fields, zap.Int64("policy_id", decision.MatchedPolicy.ID))
	}
	logger.Debug("transfer simulated", fields...)
	return decision, nil
}

// activePolicies 优先读取快照缓存，缓存异常时回退到数据库
func (s *DecisionService) activePolicies(ctx context.Context) ([]*model.Policy, error) {
	if s.cache == nil {
		return s.loadActive(ctx)
	}

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		metrics.PolicyCacheTotal.WithLabelValues("error").Inc()
		logger.Warn("read policy cache generation failed", zap.Error(err))
		return s.loadActive(ctx)
	}
	policies, ok, err := s.cache.GetActive(ctx, gen)
	if err != nil {
		metrics.PolicyCacheTotal.WithLabelValues("error").Inc()
		logger.Warn("read policy cache failed", zap.Int64("generation", gen), zap.Error(err))
		return s.loadActive(ctx)
	}
	if ok {
		metrics.PolicyCacheTotal.WithLabelValues("hit").Inc()
		metrics.ActivePoliciesGauge.Set(float64(len(policies)))
		return policies, nil
	}

	metrics.PolicyCacheTotal.WithLabelValues("miss").Inc()
	policies, err = s.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetActive(ctx, gen, policies); err != nil {
		logger.Warn("write policy cache failed", zap.Int64("generation", gen), zap.Error(err))
	}
	return policies, nil
}

func (s *DecisionService) loadActive(ctx context.Context) ([]*model.Policy, error) {
	policies, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ActivePoliciesGauge.Set(float64(len(policies)))
	return policies, nil
}
