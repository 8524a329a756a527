package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/handler"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/middleware"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// Handlers 所有处理器
type Handlers struct {
	Policy      *handler.PolicyHandler
	Transaction *handler.TransactionHandler
	Audit       *handler.AuditHandler
}

// NewEngine 创建带公共中间件的 gin 引擎
func NewEngine(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestContext())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	SetupRouter(r, h)
	return r
}

// SetupRouter 设置路由
func SetupRouter(r *gin.Engine, h *Handlers) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 运行时日志级别
	r.GET("/log/level", gin.WrapH(logger.LevelHandler()))
	r.PUT("/log/level", gin.WrapH(logger.LevelHandler()))

	v1 := r.Group("/policy/v1")
	{
		// 策略管理，reorder 需在 /:id 之前注册
		policies := v1.Group("/policies")
		{
			policies.GET("", h.Policy.List)
			policies.POST("", h.Policy.Create)
			policies.PUT("/reorder", h.Policy.Reorder)
			policies.GET("/:id", h.Policy.Get)
			policies.DELETE("/:id", h.Policy.Delete)
			policies.POST("/:id/toggle", h.Policy.Toggle)
			policies.GET("/:id/versions", h.Policy.ListVersions)

			// 变更审批
			policies.POST("/:id/changes", h.Policy.SubmitChange)
			policies.POST("/:id/deletion", h.Policy.SubmitDeletion)
			policies.POST("/:id/changes/approve", h.Policy.ApproveChange)
			policies.GET("/:id/changes/approvals", h.Policy.ListChangeApprovals)
		}

		v1.POST("/simulate", h.Transaction.Simulate)

		transactions := v1.Group("/transactions")
		{
			transactions.GET("", h.Transaction.List)
			transactions.POST("", h.Transaction.Create)
			transactions.GET("/:id", h.Transaction.Get)
			transactions.POST("/:id/approve", h.Transaction.Approve)
			transactions.POST("/:id/fail", h.Transaction.Fail)
			transactions.PUT("/:id/hash", h.Transaction.AttachHash)
			transactions.GET("/:id/approvals", h.Transaction.ListApprovals)
		}

		v1.GET("/audits", h.Audit.List)
	}
}
