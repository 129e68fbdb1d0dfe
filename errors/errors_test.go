package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditor/data/db/dialect"
	"auditor/data/orm"
)

// TestWrap_NilError 测试包装nil错误
func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrCodeInternal, "消息"))
	assert.Nil(t, WrapDatabaseError(context.Background(), nil, "操作"))
	assert.Nil(t, WrapWriteError(nil, dialect.New("sqlite"), "写入"))
}

// TestWrap_KeepsCause 测试包装后仍可通过 errors.Is 找到原始错误
func TestWrap_KeepsCause(t *testing.T) {
	original := stdErrors.New("原始错误")
	wrapped := WrapError(original, ErrCodeDatabase, "数据库层错误")

	require.Error(t, wrapped)
	assert.True(t, stdErrors.Is(wrapped, original))
	assert.Equal(t, ErrCodeDatabase, GetErrorCode(wrapped))
	assert.Equal(t, "[DATABASE_ERROR] 数据库层错误: 原始错误", wrapped.Error())
}

// TestWrapDatabaseError_Classification 测试数据库错误分类
func TestWrapDatabaseError_Classification(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "orm未找到", err: orm.ErrNotFound, want: ErrCodeNotFound},
		{name: "AppError未找到", err: NewError(ErrCodeNotFound, "记录不存在"), want: ErrCodeNotFound},
		{name: "能力不支持", err: orm.ErrUnsupported, want: ErrCodeUnsupported},
		{name: "超时", err: context.DeadlineExceeded, want: ErrCodeTimeout},
		{name: "其他", err: stdErrors.New("disk full"), want: ErrCodeDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapDatabaseError(ctx, tt.err, "查询")
			assert.True(t, IsErrorCode(got, tt.want), "got %v", got)
		})
	}
}

// TestWrapWriteError_UniqueViolation 测试唯一键冲突按方言归为 CONFLICT
func TestWrapWriteError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		err     error
		want    ErrorCode
	}{
		{name: "sqlite冲突", dialect: "sqlite", err: stdErrors.New("constraint failed: UNIQUE constraint failed: super_heroes.name (2067)"), want: ErrCodeConflict},
		{name: "postgres冲突", dialect: "pgx", err: stdErrors.New(`ERROR: duplicate key value violates unique constraint "super_heroes_name_key" (SQLSTATE 23505)`), want: ErrCodeConflict},
		{name: "mysql冲突", dialect: "mysql", err: stdErrors.New("Error 1062: Duplicate entry 'Batman' for key 'name'"), want: ErrCodeConflict},
		{name: "sqlite非冲突", dialect: "sqlite", err: stdErrors.New("no such table: super_heroes"), want: ErrCodeDatabase},
		{name: "未知方言宽松匹配", dialect: "", err: stdErrors.New("duplicate key"), want: ErrCodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapWriteError(tt.err, dialect.New(tt.dialect), "写入")
			assert.True(t, IsErrorCode(got, tt.want), "got %v", got)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

// TestAppError_IsByCode 测试同错误码比较
func TestAppError_IsByCode(t *testing.T) {
	a := NewError(ErrCodeAuditPersist, "a")
	b := NewError(ErrCodeAuditPersist, "b")
	c := NewError(ErrCodeDatabase, "c")

	assert.True(t, stdErrors.Is(a, b))
	assert.False(t, stdErrors.Is(a, c))
	assert.Equal(t, ErrCodeAuditPersist, a.Code())
}

// TestIsErrorCode_Joined 测试合并错误按顺序取第一个 AppError
func TestIsErrorCode_Joined(t *testing.T) {
	plain := stdErrors.New("hook failed")
	joined := stdErrors.Join(plain, WrapError(plain, ErrCodeAuditPersist, "audit"), NewError(ErrCodeDatabase, "db"))

	assert.True(t, IsErrorCode(joined, ErrCodeAuditPersist))
	assert.False(t, IsErrorCode(joined, ErrCodeDatabase))
	assert.False(t, IsErrorCode(plain, ErrCodeInternal))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(plain))
	assert.Equal(t, ErrCodeNotFound, GetErrorCode(fmt.Errorf("outer: %w", NewError(ErrCodeNotFound, "gone"))))
}
