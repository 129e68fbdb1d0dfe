package audit

import (
	"context"
	"time"

	"auditor/data/orm"
	"auditor/errors"
)

// ListOptions 审计轨迹查询条件；零值字段不参与过滤
type ListOptions struct {
	Kind      Kind
	Since     time.Time
	Until     time.Time
	Succeeded *bool
	Limit     int
	Offset    int
}

func (o ListOptions) queryOptions() []orm.QueryOption {
	var opts []orm.QueryOption
	if o.Kind != "" {
		opts = append(opts, orm.WithWhere("kind = ?", string(o.Kind)))
	}
	if !o.Since.IsZero() {
		opts = append(opts, orm.WithWhere("start_time_utc >= ?", o.Since.UTC()))
	}
	if !o.Until.IsZero() {
		opts = append(opts, orm.WithWhere("start_time_utc < ?", o.Until.UTC()))
	}
	if o.Succeeded != nil {
		opts = append(opts, orm.WithWhere("succeeded = ?", *o.Succeeded))
	}
	return opts
}

// Store 审计轨迹读取端
type Store struct {
	model orm.IModel
}

// NewStore 基于 ORM 适配器创建审计轨迹读取端
func NewStore(o orm.IOrm) *Store {
	return &Store{model: o.Model(ModelMeta())}
}

// List 按排序号升序返回审计记录
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*AuditRecord, error) {
	query := append(opts.queryOptions(),
		orm.WithOrderBy("sequence", false),
		orm.WithLimit(opts.Limit),
		orm.WithOffset(opts.Offset),
	)

	var records []*AuditRecord
	if err := s.model.Find(ctx, &records, query...); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "audit.Store.List")
	}
	return records, nil
}

// Get 按 ID 查询审计记录，不存在时返回 NOT_FOUND
func (s *Store) Get(ctx context.Context, id string) (*AuditRecord, error) {
	var record AuditRecord
	if err := s.model.First(ctx, &record, orm.WithWhere("id = ?", id)); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "audit.Store.Get")
	}
	return &record, nil
}

// Count 统计满足条件的审计记录数
func (s *Store) Count(ctx context.Context, opts ListOptions) (int64, error) {
	n, err := s.model.Count(ctx, opts.queryOptions()...)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "audit.Store.Count")
	}
	return n, nil
}
