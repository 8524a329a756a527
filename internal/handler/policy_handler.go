package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/service"
)

// PolicyHandler 策略管理与变更审批
type PolicyHandler struct {
	policyService *service.PolicyService
	changeService *service.ChangeApprovalService
}

// NewPolicyHandler 创建策略处理器
func NewPolicyHandler(policyService *service.PolicyService, changeService *service.ChangeApprovalService) *PolicyHandler {
	return &PolicyHandler{
		policyService: policyService,
		changeService: changeService,
	}
}

// List 按评估顺序列出全部策略
// @Router /policy/v1/policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policyService.ListPolicies(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, policies)
}

// Get 获取策略详情
// @Router /policy/v1/policies/{id} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.policyService.GetPolicy(c.Request.Context(), id)
	Respond(c, p, err)
}

// Create 创建策略，直接生效
// @Router /policy/v1/policies [post]
func (h *PolicyHandler) Create(c *gin.Context) {
	var req service.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.CreatedBy = operator(c, req.CreatedBy)

	p, err := h.policyService.CreatePolicy(c.Request.Context(), &req)
	Respond(c, p, err)
}

// Toggle 切换启用状态
// @Router /policy/v1/policies/{id}/toggle [post]
func (h *PolicyHandler) Toggle(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.policyService.TogglePolicy(c.Request.Context(), id, operator(c, ""))
	Respond(c, p, err)
}

// ReorderRequest 重排请求
type ReorderRequest struct {
	OrderedIDs []int64 `json:"ordered_ids"`
	Operator   string  `json:"operator"`
}

// Reorder 按给定顺序重排全部策略
// @Router /policy/v1/policies/reorder [put]
func (h *PolicyHandler) Reorder(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	policies, err := h.policyService.ReorderPolicies(c.Request.Context(), req.OrderedIDs, operator(c, req.Operator))
	Respond(c, policies, err)
}

// Delete 直接删除草稿策略
// @Router /policy/v1/policies/{id} [delete]
func (h *PolicyHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	err := h.policyService.DeletePolicy(c.Request.Context(), id, operator(c, ""))
	Respond(c, nil, err)
}

// ListVersions 策略版本历史
// @Router /policy/v1/policies/{id}/versions [get]
func (h *PolicyHandler) ListVersions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	versions, err := h.policyService.ListVersions(c.Request.Context(), id)
	Respond(c, versions, err)
}

// SubmitChangeRequest 提交变更请求
type SubmitChangeRequest struct {
	Diff      *model.PolicyDiff `json:"diff"`
	Submitter string            `json:"submitter"`
}

// SubmitChange 提交策略变更，进入待审批
// @Router /policy/v1/policies/{id}/changes [post]
func (h *PolicyHandler) SubmitChange(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.changeService.SubmitChange(c.Request.Context(), id, req.Diff, operator(c, req.Submitter))
	Respond(c, p, err)
}

// SubmitDeletion 提交删除请求，进入待审批
// @Router /policy/v1/policies/{id}/deletion [post]
func (h *PolicyHandler) SubmitDeletion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	// 请求体可省略，提交人取自请求头
	var req SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.changeService.SubmitDeletion(c.Request.Context(), id, operator(c, req.Submitter))
	Respond(c, p, err)
}

// ApproveRequest 审批请求
type ApproveRequest struct {
	Approver string `json:"approver"`
}

// ApproveChange 审批待审批变更
// @Router /policy/v1/policies/{id}/changes/approve [post]
func (h *PolicyHandler) ApproveChange(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.changeService.ApproveChange(c.Request.Context(), id, operator(c, req.Approver))
	Respond(c, result, err)
}

// ListChangeApprovals 变更审批记录
// @Router /policy/v1/policies/{id}/changes/approvals [get]
func (h *PolicyHandler) ListChangeApprovals(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	approvals, err := h.changeService.ListChangeApprovals(c.Request.Context(), id, c.Query("change_id"))
	Respond(c, approvals, err)
}
