package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"auditor/data/uow"
	"auditor/errors"
	"auditor/logging"
	"auditor/patterns/retry"
)

// Interceptor 审计拦截器
//
// 每个会话一个实例，暂存缓冲区只属于该实例；与会话一样非并发安全。
// 一次保存的状态流转：空闲 -> 捕获（SavingChanges）-> 成功或失败收尾 -> 空闲。
type Interceptor struct {
	session *uow.Session
	opts    *Options
	logger  logging.Logger
	buffer  []*AuditRecord
}

var _ uow.ISaveChangesInterceptor = (*Interceptor)(nil)

// NewInterceptor 创建拦截器并注册到 session
//
// session 为 nil 时拦截器不绑定会话，直接使用事件携带的会话。
func NewInterceptor(session *uow.Session, opts ...Option) *Interceptor {
	options := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	i := &Interceptor{
		session: session,
		opts:    options,
		logger:  options.Logger,
	}
	if session != nil {
		session.AddInterceptor(i)
	}
	return i
}

// Pending 返回暂存缓冲区中的记录数
func (i *Interceptor) Pending() int {
	return len(i.buffer)
}

// SavingChanges 保存前为每个待写入实体生成审计记录并暂存
func (i *Interceptor) SavingChanges(ctx context.Context, ev *uow.SaveEventData) error {
	if !i.accepts(ctx, eventSession(ev)) {
		return nil
	}

	var captured []*AuditRecord
	for _, entry := range ev.Changes {
		if isAuditRecord(entry) {
			continue
		}
		kind, ok := KindFromState(entry.State())
		if !ok {
			continue
		}
		captured = append(captured, &AuditRecord{
			ID:       i.nextID(ctx),
			Sequence: i.nextSequence(ctx),
			Kind:     kind,
			Metadata: entry.DebugView(),
		})
	}
	if len(captured) == 0 {
		return nil
	}

	start := i.opts.Clock().UTC()
	for _, r := range captured {
		r.StartTimeUTC = start
	}

	i.buffer = append(i.buffer, captured...)
	i.opts.Metrics.addCaptured(len(captured))
	i.logger.Debug(ctx, fmt.Sprintf("[Auditor] %d audit entries tracked", len(captured)),
		logging.Int("count", len(captured)), logging.Time("at", start))
	return nil
}

// SavedChanges 主保存成功后补齐结束信息并二次保存审计记录，rows 原样返回
func (i *Interceptor) SavedChanges(ctx context.Context, ev *uow.SaveCompletedEventData, rows int) (int, error) {
	var session *uow.Session
	if ev != nil {
		session = ev.Session
	}
	if !i.accepts(ctx, session) {
		return rows, nil
	}

	records := i.drain()
	if len(records) == 0 {
		return rows, nil
	}
	end := i.opts.Clock()
	for _, r := range records {
		r.finalize(end, true, nil)
	}

	err := i.persist(ctx, session, records, outcomeSucceeded)
	i.logger.Debug(ctx, fmt.Sprintf("[Auditor] %d changes saved", rows),
		logging.Int("rows", rows), logging.Time("at", end.UTC()))

	if err != nil && i.opts.PersistFailurePolicy == PolicyPropagate {
		return rows, errors.WrapError(err, errors.ErrCodeAuditPersist, "audit: persist audit records failed")
	}
	return rows, nil
}

// SaveChangesFailed 主保存失败后补齐结束信息并持久化审计记录；原始错误由会话返回
func (i *Interceptor) SaveChangesFailed(ctx context.Context, ev *uow.SaveErrorEventData) error {
	var session *uow.Session
	if ev != nil {
		session = ev.Session
	}
	if !i.accepts(ctx, session) {
		return nil
	}

	records := i.drain()
	if len(records) == 0 {
		return nil
	}
	end := i.opts.Clock()

	succeeded := true
	var errMsg *string
	if i.opts.MarkFailedOnError {
		succeeded = false
		if ev.Err != nil {
			msg := ev.Err.Error()
			errMsg = &msg
		}
	}
	for _, r := range records {
		r.finalize(end, succeeded, errMsg)
	}

	err := i.persist(ctx, session, records, outcomeFailed)
	i.logger.Debug(ctx, fmt.Sprintf("[Auditor] %d changes failed", len(records)),
		logging.Int("count", len(records)), logging.Time("at", end.UTC()))

	if err != nil && i.opts.PersistFailurePolicy == PolicyPropagate {
		return errors.WrapError(err, errors.ErrCodeAuditPersist, "audit: persist audit records failed")
	}
	return nil
}

// accepts 判断是否处理该会话的事件：nil 会话直通，绑定了会话时只处理自己的会话
func (i *Interceptor) accepts(ctx context.Context, session *uow.Session) bool {
	if session == nil {
		return false
	}
	if i.session != nil && session != i.session {
		i.logger.Warn(ctx, "[Auditor] event from a foreign session ignored")
		return false
	}
	return true
}

func eventSession(ev *uow.SaveEventData) *uow.Session {
	if ev == nil {
		return nil
	}
	return ev.Session
}

// drain 读出并清空缓冲区
func (i *Interceptor) drain() []*AuditRecord {
	records := i.buffer
	i.buffer = nil
	return records
}

func (i *Interceptor) nextID(ctx context.Context) string {
	id, err := i.opts.NewID()
	if err != nil || id == "" {
		i.logger.Warn(ctx, "[Auditor] record id generator failed, falling back to random uuid", logging.Error(err))
		return uuid.NewString()
	}
	return id
}

func (i *Interceptor) nextSequence(ctx context.Context) int64 {
	if i.opts.Sequence == nil {
		return 0
	}
	seq, err := i.opts.Sequence.NextID()
	if err != nil {
		i.logger.Warn(ctx, "[Auditor] sequence generator failed", logging.Error(err))
		return 0
	}
	return seq
}

// persist 通过仅包含本批审计记录的二次保存写入数据库，然后转发到 sink
//
// outcome 为被审计的主保存结果，与记录上的 Succeeded 标志无关。
func (i *Interceptor) persist(ctx context.Context, session *uow.Session, records []*AuditRecord, outcome string) error {
	saveCtx := ctx
	if !i.opts.HonorCancellation {
		saveCtx = context.WithoutCancel(ctx)
	}

	entities := make([]any, len(records))
	batch := make(map[any]struct{}, len(records))
	for idx, r := range records {
		entities[idx] = r
		batch[r] = struct{}{}
	}

	err := session.Add(entities...)
	if err == nil {
		save := func(ctx context.Context, attempt int) error {
			_, err := session.SaveChangesFor(ctx, func(e *uow.Entry) bool {
				_, ok := batch[e.Entity()]
				return ok
			})
			return err
		}
		if i.opts.PersistFailurePolicy == PolicyRetry {
			cfg := i.opts.Retry
			cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
				i.logger.Warn(ctx, "[Auditor] retrying audit entries save",
					logging.Int("attempt", attempt), logging.Duration("backoff", delay), logging.Error(err))
			}
			err = retry.Do(saveCtx, save, cfg)
		} else {
			err = save(saveCtx, 1)
		}
	}

	if err != nil {
		// 未写入的审计记录不能留在会话里，否则会混入下一次业务保存
		session.Detach(entities...)
		i.opts.Metrics.incPersistFailures()
		i.logger.Error(ctx, fmt.Sprintf("[Auditor] failed to persist %d audit entries", len(records)),
			logging.String("policy", i.opts.PersistFailurePolicy.String()), logging.Error(err))
		return err
	}

	i.opts.Metrics.addPersisted(len(records), outcome)
	i.opts.Metrics.observeUnitOfWork(records[0].Duration)

	if i.opts.Sink != nil {
		if sinkErr := i.opts.Sink.Forward(saveCtx, records); sinkErr != nil {
			i.opts.Metrics.addSinkFailures(len(records))
			i.logger.Warn(ctx, "[Auditor] audit sink forward failed",
				logging.Int("count", len(records)), logging.Error(sinkErr))
		}
	}
	return nil
}
