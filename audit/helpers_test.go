package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"auditor/data/db"
	basicdb "auditor/data/db/basic"
	"auditor/data/orm"
	ormbasic "auditor/data/orm/basic"
	"auditor/data/uow"
	"auditor/logging"
)

type superHero struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Place string `db:"place"`
}

func (superHero) TableName() string { return "super_heroes" }

// stepClock 每次读取前进固定步长
type stepClock struct {
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: 250 * time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type counterSequence struct{ n int64 }

func (s *counterSequence) NextID() (int64, error) {
	s.n++
	return s.n, nil
}

type logEntry struct {
	level string
	msg   string
}

// recordingLogger 记录全部日志，便于断言诊断输出
type recordingLogger struct {
	mu      sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]logEntry{}}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, fields ...logging.Field) {
	l.add("debug", msg)
}
func (l *recordingLogger) Info(ctx context.Context, msg string, fields ...logging.Field) {
	l.add("info", msg)
}
func (l *recordingLogger) Warn(ctx context.Context, msg string, fields ...logging.Field) {
	l.add("warn", msg)
}
func (l *recordingLogger) Error(ctx context.Context, msg string, fields ...logging.Field) {
	l.add("error", msg)
}
func (l *recordingLogger) WithFields(fields ...logging.Field) logging.Logger { return l }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range *l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type testEnv struct {
	db       *basicdb.DB
	orm      orm.IOrm
	registry *uow.Registry
	store    *Store
	metrics  *Metrics
	promReg  *prometheus.Registry
	logger   *recordingLogger
	clock    *stepClock
	sequence *counterSequence
	ids      int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := basicdb.New(db.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, database.ExecDDL(ctx, `
		CREATE TABLE super_heroes (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			place TEXT NOT NULL
		)`))
	require.NoError(t, EnsureSchema(ctx, database))

	promReg := prometheus.NewRegistry()
	o := ormbasic.New(database)
	return &testEnv{
		db:       database,
		orm:      o,
		registry: uow.NewRegistry(),
		store:    NewStore(o),
		metrics:  NewMetrics(promReg),
		promReg:  promReg,
		logger:   newRecordingLogger(),
		clock:    newStepClock(),
		sequence: &counterSequence{},
	}
}

// newUnitOfWork 每个逻辑请求一对会话与拦截器
func (env *testEnv) newUnitOfWork(opts ...Option) (*uow.Session, *Interceptor) {
	session := uow.New(env.orm, env.registry)
	return session, NewInterceptor(session, env.auditOptions(opts...)...)
}

// auditOptions 测试环境的时钟、ID、序号、日志与指标，opts 追加在后
func (env *testEnv) auditOptions(opts ...Option) []Option {
	base := []Option{
		WithClock(env.clock.Now),
		WithIDGenerator(func() (string, error) {
			env.ids++
			return fmt.Sprintf("rec-%03d", env.ids), nil
		}),
		WithSequence(env.sequence),
		WithLogger(env.logger),
		WithMetrics(env.metrics),
	}
	return append(base, opts...)
}

func (env *testEnv) allRecords(t *testing.T) []*AuditRecord {
	t.Helper()
	records, err := env.store.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	return records
}

func (env *testEnv) mustHeroMeta(t *testing.T) *orm.ModelMeta {
	t.Helper()
	meta, err := env.registry.Resolve(&superHero{})
	require.NoError(t, err)
	return meta
}

// failingOrm 对指定表的插入返回固定的驱动错误，其余操作委托给真实 ORM；不开启事务
type failingOrm struct {
	orm.IOrm
	table string
	err   error
}

func (o *failingOrm) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(orm.CapabilityBasicCRUD, orm.CapabilityQuery)
}

func (o *failingOrm) Model(meta *orm.ModelMeta) orm.IModel {
	model := o.IOrm.Model(meta)
	table := meta.Table
	if table == "" {
		table, _ = orm.TableNameOf(meta.Model)
	}
	if table == o.table {
		return &failingModel{IModel: model, err: o.err}
	}
	return model
}

type failingModel struct {
	orm.IModel
	err error
}

func (m *failingModel) Create(context.Context, ...any) (int64, error) { return 0, m.err }

// rejectBusinessSave 业务保存完成后返回错误，只含审计记录的保存放行
type rejectBusinessSave struct {
	err   error
	calls int
}

func (r *rejectBusinessSave) SavingChanges(context.Context, *uow.SaveEventData) error { return nil }

func (r *rejectBusinessSave) SavedChanges(ctx context.Context, ev *uow.SaveCompletedEventData, rows int) (int, error) {
	r.calls++
	for _, e := range ev.Changes {
		if _, ok := e.Entity().(*AuditRecord); !ok {
			return rows, r.err
		}
	}
	return rows, nil
}

func (r *rejectBusinessSave) SaveChangesFailed(context.Context, *uow.SaveErrorEventData) error {
	return nil
}
