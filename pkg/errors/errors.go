// Package errors 定义策略服务的业务错误
//
// 每个错误带稳定的错误码和类别，类别决定 HTTP 状态码以及
// 消费者等调用方是否应当重试。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindInternal  Kind = iota // 未知错误，可重试
	KindInvalid               // 请求参数不合法
	KindNotFound              // 资源不存在，或资源状态不允许该操作
	KindDuplicate             // 重复审批，幂等空操作
	KindTimeout               // 等待锁或下游超时
)

var kindStatus = map[Kind]int{
	KindInternal:  http.StatusInternalServerError,
	KindInvalid:   http.StatusBadRequest,
	KindNotFound:  http.StatusNotFound,
	KindDuplicate: http.StatusOK,
	KindTimeout:   http.StatusGatewayTimeout,
}

// Error 业务错误
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Kind    Kind              `json:"-"`
	Details map[string]string `json:"details,omitempty"`
	Cause   error             `json:"-"`
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Code: code, Message: message, Kind: kind}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// Field 返回校验失败的字段名
func (e *Error) Field() string {
	return e.Details["field"]
}

// HTTPStatus 类别对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	if s, ok := kindStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *Error) clone() *Error {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// Wrap 以 err 的错误码包装底层原因
func Wrap(err *Error, cause error) *Error {
	c := err.clone()
	c.Cause = cause
	return c
}

// Validation 字段校验错误
func Validation(field, message string) *Error {
	c := ErrInvalidRequest.clone()
	c.Message = message
	c.Details = map[string]string{"field": field}
	return c
}

// Validationf 格式化的字段校验错误
func Validationf(field, format string, args ...interface{}) *Error {
	return Validation(field, fmt.Sprintf(format, args...))
}

// FromError 取出业务错误，未知错误包装为内部错误
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(ErrInternal, err)
}

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).HTTPStatus()
}

// Is 判断 err 链中是否有与 target 相同错误码的业务错误
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal, false
	}
	return e.Kind, true
}

func hasKind(err error, kind Kind) bool {
	k, ok := kindOf(err)
	return ok && k == kind
}

// IsNotFound 资源不存在或状态不允许该操作
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsValidation 参数校验错误
func IsValidation(err error) bool { return hasKind(err, KindInvalid) }

// IsDuplicate 重复审批
func IsDuplicate(err error) bool { return hasKind(err, KindDuplicate) }

// IsInternal 内部错误，非业务错误也算
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	k, ok := kindOf(err)
	return !ok || k == KindInternal
}

// 通用
var (
	ErrInternal       = newError(KindInternal, "INTERNAL_ERROR", "内部错误")
	ErrInvalidRequest = newError(KindInvalid, "INVALID_REQUEST", "请求参数无效")
	ErrTimeout        = newError(KindTimeout, "TIMEOUT", "请求超时")
)

// 策略
var (
	ErrPolicyNotFound     = newError(KindNotFound, "POLICY_NOT_FOUND", "策略不存在")
	ErrChangeNotPending   = newError(KindNotFound, "CHANGE_NOT_PENDING", "策略没有待审批的变更")
	ErrDirectDeleteDenied = newError(KindInvalid, "DIRECT_DELETE_DENIED", "非草稿策略需要走删除审批")
)

// 交易
var (
	ErrTransactionNotFound     = newError(KindNotFound, "TRANSACTION_NOT_FOUND", "交易不存在")
	ErrTransactionNotPending   = newError(KindNotFound, "TRANSACTION_NOT_PENDING", "交易不在待审批状态")
	ErrTransactionNotCompleted = newError(KindNotFound, "TRANSACTION_NOT_COMPLETED", "交易未完成审批")
	ErrTransactionFinalized    = newError(KindNotFound, "TRANSACTION_FINALIZED", "交易已失败或已上链")
)

// ErrDuplicateApproval 重复审批，调用方不应视为失败
var ErrDuplicateApproval = newError(KindDuplicate, "DUPLICATE_APPROVAL", "该审批人已审批")
