// Package errors 提供统一的错误定义
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1002"
	CodeTooManyRequests    ErrorCode = "1003"
	CodeInternalError      ErrorCode = "1004"
	CodeServiceUnavailable ErrorCode = "1005"
	CodeTimeout            ErrorCode = "1006"

	// 请求/查询错误 (2xxx)
	CodeQueryMalformed     ErrorCode = "2001"
	CodeHorizonUnknown     ErrorCode = "2002"
	CodeVariableUnknown    ErrorCode = "2003"

	// 资源管控错误 (3xxx)
	CodeBudgetExceeded    ErrorCode = "3001"
	CodeDeviceUnavailable ErrorCode = "3002"
	CodePoolExhausted     ErrorCode = "3003"

	// 检索/质量错误 (4xxx)
	CodeIndexUnavailable    ErrorCode = "4001"
	CodeDegenerateResult    ErrorCode = "4002"
	CodeInsufficientAnalogs ErrorCode = "4003"

	// 外部服务错误 (5xxx)
	CodeOutcomeStoreError ErrorCode = "5001"
	CodeCacheError        ErrorCode = "5002"
	CodeVectorDBError     ErrorCode = "5003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
// 返回副本，预定义错误可被并发请求安全修饰
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithDetailf 添加格式化的详细信息
func (e *AppError) WithDetailf(format string, args ...any) *AppError {
	clone := *e
	clone.Detail = fmt.Sprintf(format, args...)
	return &clone
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeQueryMalformed, CodeHorizonUnknown, CodeVariableUnknown:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeBudgetExceeded, CodePoolExhausted:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable, CodeDeviceUnavailable, CodeIndexUnavailable, CodeDegenerateResult:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrQueryMalformed  = New(CodeQueryMalformed, "query embedding malformed")
	ErrHorizonUnknown  = New(CodeHorizonUnknown, "forecast horizon not configured")
	ErrVariableUnknown = New(CodeVariableUnknown, "forecast variable not recognized")

	ErrBudgetExceeded    = New(CodeBudgetExceeded, "memory budget exceeded")
	ErrDeviceUnavailable = New(CodeDeviceUnavailable, "no execution device satisfies minimum capability")
	ErrPoolExhausted     = New(CodePoolExhausted, "search handle pool exhausted")

	ErrIndexUnavailable    = New(CodeIndexUnavailable, "vector index unavailable")
	ErrDegenerateResult    = New(CodeDegenerateResult, "search result degenerate")
	ErrInsufficientAnalogs = New(CodeInsufficientAnalogs, "insufficient valid analogs")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsCode 检查错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
