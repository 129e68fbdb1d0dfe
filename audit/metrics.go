package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Persisted 的 outcome 标签取值
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// Metrics 审计拦截器的 Prometheus 指标；nil 接收者上的方法均为空操作
type Metrics struct {
	Captured        prometheus.Counter
	Persisted       *prometheus.CounterVec
	PersistFailures prometheus.Counter
	SinkFailures    prometheus.Counter
	UnitOfWork      prometheus.Histogram
}

// NewMetrics 在指定 Registerer 上注册审计指标；reg 为 nil 时注册到默认 Registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Captured: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditor_audit_captured_total",
			Help: "Total number of audit records captured before a save",
		}),
		Persisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_audit_persisted_total",
			Help: "Total number of audit records persisted, by outcome of the audited save",
		}, []string{"outcome"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditor_audit_persist_failures_total",
			Help: "Total number of failed audit-only saves",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditor_audit_sink_failures_total",
			Help: "Total number of audit records a sink failed to forward",
		}),
		UnitOfWork: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_audit_unit_of_work_duration_seconds",
			Help:    "Duration of audited units of work",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) addCaptured(n int) {
	if m == nil {
		return
	}
	m.Captured.Add(float64(n))
}

func (m *Metrics) addPersisted(n int, outcome string) {
	if m == nil {
		return
	}
	m.Persisted.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) addSinkFailures(n int) {
	if m == nil {
		return
	}
	m.SinkFailures.Add(float64(n))
}

func (m *Metrics) observeUnitOfWork(d time.Duration) {
	if m == nil {
		return
	}
	m.UnitOfWork.Observe(d.Seconds())
}
