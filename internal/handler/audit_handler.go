package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/service"
)

// AuditHandler 审计日志查询
type AuditHandler struct {
	auditService *service.AuditService
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// List 分页查询审计日志
// @Param action query string false "审计动作"
// @Param resource_type query string false "policy, transaction"
// @Router /policy/v1/audits [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := &repository.AuditLogFilter{
		Action:       model.AuditAction(c.Query("action")),
		ResourceType: c.Query("resource_type"),
		Operator:     c.Query("operator"),
	}
	if v := c.Query("resource_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			BadRequest(c, "invalid resource_id")
			return
		}
		filter.ResourceID = id
	}
	pagination := parsePagination(c)

	logs, err := h.auditService.ListAuditLogs(c.Request.Context(), filter, pagination)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, logs, pagination)
}
