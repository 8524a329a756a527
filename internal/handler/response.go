// Package handler 提供策略服务的 HTTP 处理器
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/middleware"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"` // 业务错误码
	Details map[string]string `json:"details,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

// PagedResponse 分页响应
type PagedResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Meta    PageMeta    `json:"meta"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessPaged 分页成功响应
func SuccessPaged(c *gin.Context, data interface{}, p *repository.Pagination) {
	c.JSON(http.StatusOK, PagedResponse{
		Code:    0,
		Message: "success",
		Data:    data,
		Meta: PageMeta{
			Page:     p.Page,
			PageSize: p.PageSize,
			Total:    p.Total,
		},
	})
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: message,
		Error:   bizerr.ErrInvalidRequest.Code,
	})
}

// Fail 按业务错误类型返回状态码
func Fail(c *gin.Context, err error) {
	e := bizerr.FromError(err)
	status := bizerr.ToHTTPStatus(e)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, Response{
		Code:    status,
		Message: e.Message,
		Error:   e.Code,
		Details: e.Details,
	})
}

// Respond 成功或失败响应。重复审批不是失败，返回 200 和未修改的数据
func Respond(c *gin.Context, data interface{}, err error) {
	switch {
	case err == nil:
		Success(c, data)
	case bizerr.IsDuplicate(err):
		c.JSON(http.StatusOK, Response{
			Code:    0,
			Message: "duplicate approval ignored",
			Error:   bizerr.ErrDuplicateApproval.Code,
			Data:    data,
		})
	default:
		Fail(c, err)
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parsePagination(c *gin.Context) *repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NewPagination(page, pageSize)
}

// operator 请求体未给出操作人时使用 X-Operator 头
func operator(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.GetOperator(c)
}
