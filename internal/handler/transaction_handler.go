package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/rules"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/service"
)

// TransactionHandler 决策模拟与交易审批
type TransactionHandler struct {
	decisionService    *service.DecisionService
	transactionService *service.TransactionService
}

// NewTransactionHandler 创建交易处理器
func NewTransactionHandler(decisionService *service.DecisionService, transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		decisionService:    decisionService,
		transactionService: transactionService,
	}
}

// Simulate 评估转账请求，只读
// @Router /policy/v1/simulate [post]
func (h *TransactionHandler) Simulate(c *gin.Context) {
	var req rules.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	decision, err := h.decisionService.Simulate(c.Request.Context(), &req)
	Respond(c, decision, err)
}

// Create 根据 require_approval 决策创建待审批交易
// @Router /policy/v1/transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	var req service.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.Initiator = operator(c, req.Initiator)
	tx, err := h.transactionService.CreateTransaction(c.Request.Context(), &req)
	Respond(c, tx, err)
}

// Get 获取交易
// @Router /policy/v1/transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tx, err := h.transactionService.GetTransaction(c.Request.Context(), id)
	Respond(c, tx, err)
}

// List 分页查询交易
// @Param status query string false "pending, completed, failed"
// @Router /policy/v1/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	filter := &repository.TransactionFilter{
		Status: model.TransactionStatus(c.Query("status")),
		UserID: c.Query("user_id"),
	}
	if v := c.Query("policy_id"); v != "" {
		policyID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			BadRequest(c, "invalid policy_id")
			return
		}
		filter.PolicyID = policyID
	}
	pagination := parsePagination(c)

	txs, err := h.transactionService.ListTransactions(c.Request.Context(), filter, pagination)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, txs, pagination)
}

// Approve 审批交易，重复审批返回 200
// @Router /policy/v1/transactions/{id}/approve [post]
func (h *TransactionHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	tx, err := h.transactionService.ApproveTransaction(c.Request.Context(), id, operator(c, req.Approver))
	Respond(c, tx, err)
}

// FailRequest 标记失败请求
type FailRequest struct {
	Reason   string `json:"reason"`
	Operator string `json:"operator"`
}

// Fail 标记交易失败
// @Router /policy/v1/transactions/{id}/fail [post]
func (h *TransactionHandler) Fail(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	tx, err := h.transactionService.FailTransaction(c.Request.Context(), id, req.Reason, operator(c, req.Operator))
	Respond(c, tx, err)
}

// AttachHashRequest 记录链上哈希请求
type AttachHashRequest struct {
	TxHash   string `json:"tx_hash"`
	Operator string `json:"operator"`
}

// AttachHash 为已完成的交易记录链上哈希
// @Router /policy/v1/transactions/{id}/hash [put]
func (h *TransactionHandler) AttachHash(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req AttachHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	tx, err := h.transactionService.AttachTxHash(c.Request.Context(), id, req.TxHash, operator(c, req.Operator))
	Respond(c, tx, err)
}

// ListApprovals 交易审批记录
// @Router /policy/v1/transactions/{id}/approvals [get]
func (h *TransactionHandler) ListApprovals(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	approvals, err := h.transactionService.ListApprovals(c.Request.Context(), id)
	Respond(c, approvals, err)
}
