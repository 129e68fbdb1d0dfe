package basic

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	dbcore "auditor/data/db"
	dbsql "auditor/data/db/sql"
	"auditor/data/orm"
)

// Orm 是基于 data/db + data/db/sql 的轻量 IOrm 实现。
//
// 不依赖具体 ORM（如 gorm），直接在 DB 抽象之上工作；
// 仅覆盖工作单元提交与审计查询所需的增删改查。
type Orm struct {
	db   dbcore.IDatabase
	sql  dbsql.ISql
	caps orm.Capabilities
}

// New 创建一个基于指定 IDatabase 的 Orm 适配器。
func New(db dbcore.IDatabase) *Orm {
	return &Orm{
		db:  db,
		sql: dbsql.New(db),
		caps: orm.NewCapabilities(
			orm.CapabilityBasicCRUD,
			orm.CapabilityQuery,
			orm.CapabilityTransaction,
		),
	}
}

// Capabilities 返回适配器支持的能力。
func (o *Orm) Capabilities() orm.Capabilities { return o.caps }

// Model 返回模型级操作入口。
func (o *Orm) Model(meta *orm.ModelMeta) orm.IModel {
	if meta == nil {
		panic("basic.Orm: ModelMeta cannot be nil")
	}

	table := meta.Table
	if table == "" {
		if tn, ok := orm.TableNameOf(meta.Model); ok {
			table = tn
		}
	}
	if table == "" {
		panic("basic.Orm: table name is empty")
	}

	return &model{orm: o, meta: meta, table: table}
}

// Begin 开启事务会话。
func (o *Orm) Begin(ctx context.Context) (orm.IOrmSession, error) {
	tx, err := o.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	session := &session{Orm: New(tx), tx: tx}
	// 事务内不再支持嵌套事务
	session.caps = orm.NewCapabilities(orm.CapabilityBasicCRUD, orm.CapabilityQuery)
	return session, nil
}

// Database 返回底层数据库抽象。
func (o *Orm) Database() dbcore.IDatabase { return o.db }

// session 实现 IOrmSession，委托给内部 Orm，并持有事务以便 Commit/Rollback。
type session struct {
	*Orm
	tx dbcore.ITransaction
}

func (s *session) Commit() error   { return s.tx.Commit() }
func (s *session) Rollback() error { return s.tx.Rollback() }

// ------------------------------------------------------------------------
// model 实现 orm.IModel
// ------------------------------------------------------------------------

type model struct {
	orm   *Orm
	meta  *orm.ModelMeta
	table string
}

func (m *model) Meta() *orm.ModelMeta { return m.meta }

func (m *model) selectBuilder(qo orm.QueryOptions, columns ...string) dbsql.ISelectBuilder {
	if len(columns) == 0 {
		columns = qo.Select
	}
	builder := m.orm.sql.Select(columns...).From(m.table)
	for _, w := range qo.Where {
		builder = builder.Where(w.Expr, w.Args...)
	}
	return builder
}

// First 查询单条记录，无结果时返回 orm.ErrNotFound。
func (m *model) First(ctx context.Context, dest any, opts ...orm.QueryOption) error {
	qo := orm.CollectQueryOptions(opts...)
	builder := m.selectBuilder(qo).OrderBy(buildOrderByExpr(qo.OrderBy)).Limit(1).Offset(qo.Offset)

	rows, err := builder.Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return orm.ErrNotFound
	}
	return scanRowsIntoDest(rows, dest)
}

// Find 查询多条记录，dest 必须为 *[]T 或 *[]*T。
func (m *model) Find(ctx context.Context, dest any, opts ...orm.QueryOption) error {
	qo := orm.CollectQueryOptions(opts...)
	builder := m.selectBuilder(qo).OrderBy(buildOrderByExpr(qo.OrderBy)).Limit(qo.Limit).Offset(qo.Offset)

	rows, err := builder.Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	return scanRowsIntoDest(rows, dest)
}

// Count 统计数量（忽略 Select/OrderBy，只做简单 COUNT(*)）。
func (m *model) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	qo := orm.CollectQueryOptions(opts...)
	var count int64
	if err := m.selectBuilder(qo, "COUNT(*)").QueryRow(ctx).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Create 插入记录（支持批量，要求同一类型）。
func (m *model) Create(ctx context.Context, entities ...any) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	sm, err := orm.StructMetaOf(entities[0])
	if err != nil {
		return 0, fmt.Errorf("basic.Model.Create: %w", err)
	}

	var fields []orm.StructField
	var cols []string
	for _, f := range sm.Fields {
		// 自增主键交给数据库生成
		if f.PrimaryKey && f.AutoIncrement {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, f.Column)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("basic.Model.Create: no insertable columns for %T", entities[0])
	}

	builder := m.orm.sql.InsertInto(m.table).Columns(cols...)
	for _, e := range entities {
		if reflect.TypeOf(e) != reflect.TypeOf(entities[0]) {
			return 0, fmt.Errorf("basic.Model.Create: mixed entity types %T and %T", entities[0], e)
		}
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i], _ = sm.Value(e, f)
		}
		builder = builder.Values(row...)
	}

	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Save 根据 QueryOptions 执行整行更新（主键列不参与 SET）；没有条件时返回 dbsql.ErrMissingWhere。
func (m *model) Save(ctx context.Context, entity any, opts ...orm.QueryOption) (int64, error) {
	sm, err := orm.StructMetaOf(entity)
	if err != nil {
		return 0, fmt.Errorf("basic.Model.Save: %w", err)
	}
	qo := orm.CollectQueryOptions(opts...)
	builder := m.orm.sql.Update(m.table)
	for _, f := range sm.Fields {
		if f.PrimaryKey {
			continue
		}
		if v, ok := sm.Value(entity, f); ok {
			builder = builder.Set(f.Column, v)
		}
	}
	for _, w := range qo.Where {
		builder = builder.Where(w.Expr, w.Args...)
	}

	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete 根据 QueryOptions 删除记录；没有条件时返回 dbsql.ErrMissingWhere。
func (m *model) Delete(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	qo := orm.CollectQueryOptions(opts...)
	builder := m.orm.sql.DeleteFrom(m.table)
	for _, w := range qo.Where {
		builder = builder.Where(w.Expr, w.Args...)
	}
	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ------------------------------------------------------------------------
// 扫描工具
// ------------------------------------------------------------------------

// scanRowsIntoDest 将 rows 扫描到 dest 中。
// 支持 dest 为 *T（当前行）或 *[]T / *[]*T（剩余全部行）。
func scanRowsIntoDest(rows dbcore.IRows, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("basic.scanRowsIntoDest: dest must be non-nil pointer")
	}

	elem := rv.Elem()
	switch elem.Kind() {
	case reflect.Slice:
		elemType := elem.Type().Elem()
		isPtr := elemType.Kind() == reflect.Ptr
		if isPtr {
			elemType = elemType.Elem()
		}
		for rows.Next() {
			item := reflect.New(elemType)
			if err := scanOneRow(rows, item.Elem()); err != nil {
				return err
			}
			if isPtr {
				elem.Set(reflect.Append(elem, item))
			} else {
				elem.Set(reflect.Append(elem, item.Elem()))
			}
		}
		return rows.Err()
	case reflect.Struct:
		// First 已经 Next() 过一行，这里直接扫描当前行
		return scanOneRow(rows, elem)
	default:
		return fmt.Errorf("basic.scanRowsIntoDest: unsupported dest element kind %s", elem.Kind())
	}
}

func scanOneRow(rows dbcore.IRows, v reflect.Value) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	sm, err := orm.StructMetaOf(v.Addr().Interface())
	if err != nil {
		return err
	}

	destPtrs := make([]any, len(cols))
	for i, col := range cols {
		var target any = new(any)
		if fi, ok := sm.FieldByColumn(col); ok {
			if fv := orm.FieldByIndexSafe(v, fi.Index); fv.IsValid() && fv.CanSet() {
				target = fv.Addr().Interface()
			}
		}
		destPtrs[i] = target
	}

	return rows.Scan(destPtrs...)
}

func buildOrderByExpr(orders []orm.OrderBy) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Column == "" {
			continue
		}
		if o.Desc {
			parts = append(parts, o.Column+" DESC")
		} else {
			parts = append(parts, o.Column+" ASC")
		}
	}
	return strings.Join(parts, ", ")
}
