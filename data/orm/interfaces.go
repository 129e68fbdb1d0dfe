package orm

import (
	"context"

	"auditor/data/db"
)

// IOrm 表示 ORM 适配器入口。
// 仅定义接口，具体实现以适配器形式注入（见 data/orm/basic）。
type IOrm interface {
	// Capabilities 返回适配器支持的能力集合。
	Capabilities() Capabilities
	// Model 返回指定模型的操作入口。
	Model(meta *ModelMeta) IModel
	// Begin 开启事务会话。
	Begin(ctx context.Context) (IOrmSession, error)
	// Database 返回适配器绑定的通用数据库（可选，可为 nil）。
	Database() db.IDatabase
}

// IOrmSession 表示事务会话。
type IOrmSession interface {
	IOrm
	Commit() error
	Rollback() error
}

// IModel 封装模型级别的基础操作。
type IModel interface {
	Meta() *ModelMeta

	First(ctx context.Context, dest any, opts ...QueryOption) error
	Find(ctx context.Context, dest any, opts ...QueryOption) error
	Count(ctx context.Context, opts ...QueryOption) (int64, error)

	// Create 插入记录，返回受影响行数。
	Create(ctx context.Context, entities ...any) (int64, error)
	// Save 根据 QueryOptions 执行整行更新，通常结合主键条件。
	Save(ctx context.Context, entity any, opts ...QueryOption) (int64, error)
	// Delete 根据 QueryOptions 删除记录，不允许无条件删除。
	Delete(ctx context.Context, opts ...QueryOption) (int64, error)
}
