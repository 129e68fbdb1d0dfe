package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"auditor/audit"
	"auditor/audit/sink/natsjetstream"
	"auditor/audit/sink/redisstreams"
	"auditor/config"
	basicdb "auditor/data/db/basic"
	ormbasic "auditor/data/orm/basic"
	"auditor/data/uow"
	"auditor/errors"
	"auditor/logging"
)

// SuperHero 演示实体
type SuperHero struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Place string `db:"place"`
}

func (SuperHero) TableName() string { return "super_heroes" }

const heroTable = `CREATE TABLE IF NOT EXISTS super_heroes (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	place TEXT NOT NULL
)`

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	must(err)
	logging.SetLogger(logging.NewStdLoggerWithLevel("[auditdemo] ", cfg.Log.LogLevel()))

	ctx := context.Background()
	database, err := basicdb.New(cfg.Database.DBConfig())
	must(err)
	defer database.Close()

	_, err = database.Exec(ctx, heroTable)
	must(err)
	must(audit.EnsureSchema(ctx, database))

	auditOpts, err := cfg.Audit.Options()
	must(err)

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		auditOpts = append(auditOpts, audit.WithMetrics(audit.NewMetrics(registry)))
	}

	sink, closeSinks := buildSinks(ctx, cfg.Sinks)
	defer closeSinks()
	if sink != nil {
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}

	o := ormbasic.New(database)
	models := uow.NewRegistry()
	// 每个逻辑请求一对会话与拦截器
	unitOfWork := func() *uow.Session {
		session := uow.New(o, models)
		audit.NewInterceptor(session, auditOpts...)
		return session
	}

	batman := &SuperHero{ID: 1, Name: "Batman", Place: "Gotham"}
	superman := &SuperHero{ID: 2, Name: "Superman", Place: "Metropolis"}

	// 情景一：新增
	session := unitOfWork()
	must(session.Add(batman, superman))
	rows, err := session.SaveChanges(ctx)
	must(err)
	fmt.Printf("add: %d rows\n", rows)

	// 情景二：修改与删除
	session = unitOfWork()
	must(session.Attach(batman, superman))
	batman.Place = "Batcave"
	must(session.Remove(superman))
	rows, err = session.SaveChanges(ctx)
	must(err)
	fmt.Printf("modify+delete: %d rows\n", rows)

	// 情景三：唯一约束冲突
	session = unitOfWork()
	must(session.Add(&SuperHero{ID: 3, Name: "Batman", Place: "Elsewhere"}))
	if _, err := session.SaveChanges(ctx); err != nil {
		fmt.Printf("duplicate insert failed (%s): %v\n", errors.GetErrorCode(err), err)
	}

	store := audit.NewStore(o)
	records, err := store.List(ctx, audit.ListOptions{})
	must(err)
	fmt.Printf("\naudit trail (%d records)\n", len(records))
	for _, r := range records {
		headline, _, _ := strings.Cut(r.Metadata, "\n")
		fmt.Printf("  #%d %-8s succeeded=%-5t duration=%-10s %s\n", r.Sequence, r.Kind, r.Succeeded, r.Duration, headline)
	}

	if registry != nil {
		printMetrics(ctx, registry)
	}
}

// buildSinks 按配置组装转发目标；连接失败的 sink 记录告警后跳过
func buildSinks(ctx context.Context, cfg config.SinksConfig) (audit.ISink, func()) {
	logger := logging.GetLogger()
	var sinks audit.MultiSink
	var closers []func() error

	if cfg.Redis.Enabled {
		s, err := redisstreams.NewSink(redisstreams.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			logger.Warn(ctx, "redis sink disabled", logging.String("addr", cfg.Redis.Addr), logging.Error(err))
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s.Close)
		}
	}

	if cfg.NATS.Enabled {
		s := natsjetstream.NewSink(natsjetstream.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err := s.Open(ctx); err != nil {
			logger.Warn(ctx, "nats sink disabled", logging.String("url", cfg.NATS.URL), logging.Error(err))
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s.Close)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn(ctx, "close sink failed", logging.Error(err))
			}
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll
	}
	return sinks, closeAll
}

func printMetrics(ctx context.Context, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logging.GetLogger().Warn(ctx, "gather metrics failed", logging.Error(err))
		return
	}
	fmt.Println("\nmetrics")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("  %s %g\n", name, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Printf("  %s count=%d sum=%gs\n", name, m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
