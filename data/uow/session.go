package uow

import (
	"context"
	stdErrors "errors"
	"fmt"

	"auditor/data/db/dialect"
	"auditor/data/orm"
	"auditor/errors"
	"auditor/logging"
)

// ErrNoRowsAffected 更新或删除未命中任何行（实体已被并发修改或删除）
var ErrNoRowsAffected = stdErrors.New("uow: expected to affect 1 row but affected 0")

// Option 会话选项
type Option func(*Session)

// WithLogger 指定会话日志
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterceptors 注册保存拦截器
func WithInterceptors(interceptors ...ISaveChangesInterceptor) Option {
	return func(s *Session) {
		s.interceptors = append(s.interceptors, interceptors...)
	}
}

// Session 工作单元会话
//
// 一个会话对应一个逻辑请求，非并发安全；不同请求应各自创建会话。
type Session struct {
	orm          orm.IOrm
	registry     *Registry
	tracker      *ChangeTracker
	interceptors []ISaveChangesInterceptor
	logger       logging.Logger
}

// New 创建会话；registry 为 nil 时使用独立的注册表
func New(o orm.IOrm, registry *Registry, opts ...Option) *Session {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Session{
		orm:      o,
		registry: registry,
		tracker:  newChangeTracker(),
		logger:   logging.GetLogger().WithFields(logging.String("component", "uow.session")),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddInterceptor 追加保存拦截器
func (s *Session) AddInterceptor(interceptor ISaveChangesInterceptor) {
	if interceptor != nil {
		s.interceptors = append(s.interceptors, interceptor)
	}
}

// ChangeTracker 返回会话的变更跟踪器
func (s *Session) ChangeTracker() *ChangeTracker { return s.tracker }

// Orm 返回会话绑定的 ORM 适配器
func (s *Session) Orm() orm.IOrm { return s.orm }

// Add 以 Added 状态跟踪实体
func (s *Session) Add(entities ...any) error {
	return s.trackAll(Added, entities)
}

// Attach 以 Unchanged 状态跟踪实体并记录原始值快照
func (s *Session) Attach(entities ...any) error {
	return s.trackAll(Unchanged, entities)
}

// Update 将实体标记为 Modified；未跟踪的实体全部列视为已修改
func (s *Session) Update(entities ...any) error {
	for _, entity := range entities {
		if e, ok := s.tracker.Entry(entity); ok && e.state == Added {
			continue
		}
		if err := s.track(Modified, entity); err != nil {
			return err
		}
	}
	return nil
}

// Remove 将实体标记为 Deleted；尚未保存的 Added 实体直接停止跟踪
func (s *Session) Remove(entities ...any) error {
	for _, entity := range entities {
		if e, ok := s.tracker.Entry(entity); ok && e.state == Added {
			s.tracker.detach(entity)
			continue
		}
		if err := s.track(Deleted, entity); err != nil {
			return err
		}
	}
	return nil
}

// Detach 停止跟踪实体
func (s *Session) Detach(entities ...any) {
	for _, entity := range entities {
		s.tracker.detach(entity)
	}
}

func (s *Session) trackAll(state EntityState, entities []any) error {
	for _, entity := range entities {
		if err := s.track(state, entity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) track(state EntityState, entity any) error {
	meta, err := s.registry.Resolve(entity)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "uow: cannot track entity")
	}
	_, err = s.tracker.Track(entity, meta, state)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "uow: cannot track entity")
	}
	return nil
}

// SaveChanges 保存全部待写入条目，返回写入的实体条目数
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	return s.SaveChangesFor(ctx, nil)
}

// SaveChangesFor 仅保存 filter 接受的待写入条目，其余条目保持待写入状态
//
// 流程：检测变更 -> 收集范围内条目（为空则直接返回 0，不回调拦截器）
// -> SavingChanges -> 事务内写入 -> 失败时回滚并回调 SaveChangesFailed，
// 返回包装后的写入错误（唯一键冲突为 CONFLICT，其余为 DATABASE_ERROR）
// -> 成功时提交、接受变更并回调全部 SavedChanges，汇总其中的错误。
func (s *Session) SaveChangesFor(ctx context.Context, filter func(*Entry) bool) (int, error) {
	s.tracker.DetectChanges()
	pending := s.tracker.pending(filter)
	if len(pending) == 0 {
		return 0, nil
	}

	ev := SaveEventData{Session: s, Changes: pending}
	for _, interceptor := range s.interceptors {
		if err := interceptor.SavingChanges(ctx, &ev); err != nil {
			return 0, s.fail(ctx, ev, err)
		}
	}

	rows, err := s.apply(ctx, pending)
	if err != nil {
		d := dialect.FromDatabase(s.orm.Database())
		return 0, s.fail(ctx, ev, errors.WrapWriteError(err, d, "uow: save changes failed"))
	}

	s.tracker.AcceptChanges(pending)
	s.logger.Debug(ctx, "uow: changes saved", logging.Int("rows", rows))

	// 每个拦截器都必须收到完成回调，否则其缓冲会残留到下一次保存
	completed := &SaveCompletedEventData{SaveEventData: ev, RowsAffected: rows}
	var errs []error
	for _, interceptor := range s.interceptors {
		result, err := interceptor.SavedChanges(ctx, completed, rows)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = result
	}
	switch len(errs) {
	case 0:
		return rows, nil
	case 1:
		return rows, errs[0]
	default:
		return rows, stdErrors.Join(errs...)
	}
}

// fail 回调失败拦截器并返回原始错误；拦截器自身的错误只记录日志
func (s *Session) fail(ctx context.Context, ev SaveEventData, cause error) error {
	failed := &SaveErrorEventData{SaveEventData: ev, Err: cause}
	for _, interceptor := range s.interceptors {
		if err := interceptor.SaveChangesFailed(ctx, failed); err != nil {
			s.logger.Warn(ctx, "uow: save failure interceptor returned error",
				logging.Error(err), logging.String("interceptor", fmt.Sprintf("%T", interceptor)))
		}
	}
	return cause
}

func (s *Session) apply(ctx context.Context, pending []*Entry) (rows int, err error) {
	target := s.orm
	var tx orm.IOrmSession
	if s.orm.Capabilities().Supports(orm.CapabilityTransaction) {
		if tx, err = s.orm.Begin(ctx); err != nil {
			return 0, err
		}
		target = tx
		defer func() {
			if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					s.logger.Warn(ctx, "uow: rollback failed", logging.Error(rbErr))
				}
			}
		}()
	}

	for _, e := range pending {
		if err = write(ctx, target.Model(e.meta), e); err != nil {
			return 0, err
		}
		rows++
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return 0, err
		}
	}
	return rows, nil
}

func write(ctx context.Context, model orm.IModel, e *Entry) error {
	switch e.state {
	case Added:
		_, err := model.Create(ctx, e.entity)
		return err
	case Modified:
		affected, err := model.Save(ctx, e.entity, keyConditions(e)...)
		if err == nil && affected == 0 {
			err = ErrNoRowsAffected
		}
		return err
	case Deleted:
		affected, err := model.Delete(ctx, keyConditions(e)...)
		if err == nil && affected == 0 {
			err = ErrNoRowsAffected
		}
		return err
	default:
		return nil
	}
}

func keyConditions(e *Entry) []orm.QueryOption {
	keys, values := e.KeyValues()
	opts := make([]orm.QueryOption, len(keys))
	for i, col := range keys {
		opts[i] = orm.WithWhere(col+" = ?", values[i])
	}
	return opts
}
