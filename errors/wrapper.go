package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"runtime"

	"auditor/data/db/dialect"
	"auditor/data/orm"
	"auditor/logging"
)

// wrapWithLog 包装错误并以 warn 记录调用位置
func wrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	_, file, line, _ := runtime.Caller(2)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return WrapError(err, code, msg)
}

// WrapDatabaseError 包装审计查询等读路径上的数据库错误
// 自动识别 orm.ErrNotFound、能力不支持与上下文超时
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case IsNotFound(err), stdErrors.Is(err, orm.ErrNotFound):
		return WrapError(err, ErrCodeNotFound, operation)
	case stdErrors.Is(err, orm.ErrUnsupported):
		return WrapError(err, ErrCodeUnsupported, operation)
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, operation)
	}

	return wrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}

// WrapWriteError 包装工作单元写入阶段的错误
//
// 按方言识别唯一键冲突并归为 CONFLICT，其余归为 DATABASE_ERROR；
// 原始错误保留在 cause 中，errors.Is 仍可命中驱动错误。
func WrapWriteError(err error, d dialect.Dialect, message string) error {
	if err == nil {
		return nil
	}
	if d.IsUniqueViolation(err) {
		return WrapError(err, ErrCodeConflict, message)
	}
	return WrapError(err, ErrCodeDatabase, message)
}
