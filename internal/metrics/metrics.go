// Package metrics 提供策略服务的 Prometheus 监控指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eidos_policy"

// HTTP 指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 决策指标
var (
	// DecisionsTotal 决策总数
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "策略决策总数",
		},
		[]string{"action", "matched"}, // matched: policy/default
	)

	// DecisionDuration 决策耗时
	DecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "策略决策耗时(秒)",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	// ActivePoliciesGauge 最近一次决策加载的启用策略数
	ActivePoliciesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_policies",
			Help:      "启用的策略数",
		},
	)

	// PolicyCacheTotal 策略快照缓存命中情况
	PolicyCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_total",
			Help:      "策略快照缓存访问次数",
		},
		[]string{"result"}, // hit/miss/error/invalidate_error
	)
)

// 审批指标
var (
	// ApprovalsTotal 审批次数
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "审批次数",
		},
		[]string{"kind", "result"}, // kind: transaction/change, result: recorded/duplicate/committed/rejected
	)

	// TransactionsTotal 交易状态变化次数
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "交易状态变化次数",
		},
		[]string{"status"},
	)

	// PolicyMutationsTotal 策略变更次数
	PolicyMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_mutations_total",
			Help:      "策略变更次数",
		},
		[]string{"operation"},
	)

	// EventsPublishedTotal 事件发布次数
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "事件发布次数",
		},
		[]string{"topic", "result"},
	)
)

// RecordDecision 记录一次决策
func RecordDecision(action string, matched bool, elapsed time.Duration) {
	label := "default"
	if matched {
		label = "policy"
	}
	DecisionsTotal.WithLabelValues(action, label).Inc()
	DecisionDuration.Observe(elapsed.Seconds())
}

// RecordApproval 记录一次审批
func RecordApproval(kind, result string) {
	ApprovalsTotal.WithLabelValues(kind, result).Inc()
}

// RecordMutation 记录一次策略变更
func RecordMutation(operation string) {
	PolicyMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
