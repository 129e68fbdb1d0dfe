// Package errors 提供带错误码的应用错误，供工作单元与审计层区分失败类别。
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"
	ErrCodeDatabase     ErrorCode = "DATABASE_ERROR"

	// 审计记录自身写入失败，主操作结果不受影响
	ErrCodeAuditPersist ErrorCode = "AUDIT_PERSIST_ERROR"
)

// AppError 携带错误码的错误，cause 保留驱动或 ORM 的原始错误
type AppError struct {
	code    ErrorCode
	message string
	cause   error
}

// NewError 创建不带原因的错误
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{code: code, message: message}
}

// WrapError 以 code 包装 err；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 错误代码
func (e *AppError) Code() ErrorCode { return e.code }

// Is 同错误码的 AppError 视为同一类错误；否则沿 cause 链比较
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

func (e *AppError) Unwrap() error { return e.cause }

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsErrorCode 检查错误链上第一个 AppError 是否为指定错误代码
//
// errors.Join 合并的错误按顺序查找，命中第一个 AppError 即返回。
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stdErrors.As(err, &appErr) && appErr.code == code
}

// GetErrorCode 获取错误代码；非 AppError 归为 INTERNAL_ERROR，nil 返回空串
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}
