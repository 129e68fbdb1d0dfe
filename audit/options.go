package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditor/codegen/snowflake"
	"auditor/logging"
	"auditor/patterns/retry"
)

// PersistFailurePolicy 审计二次保存失败时的处理策略
type PersistFailurePolicy int

const (
	// PolicySwallow 记录错误日志与指标，主操作结果照常返回
	PolicySwallow PersistFailurePolicy = iota
	// PolicyPropagate 成功路径返回包装后的 AUDIT_PERSIST_ERROR；失败路径仍只返回原始错误
	PolicyPropagate
	// PolicyRetry 按退避重试二次保存，仍失败时退化为 PolicySwallow
	PolicyRetry
)

// String 返回策略名称
func (p PersistFailurePolicy) String() string {
	switch p {
	case PolicySwallow:
		return "swallow"
	case PolicyPropagate:
		return "propagate"
	case PolicyRetry:
		return "retry"
	default:
		return fmt.Sprintf("PersistFailurePolicy(%d)", int(p))
	}
}

// ParsePersistFailurePolicy 解析策略名称（大小写不敏感），空字符串为 swallow
func ParsePersistFailurePolicy(s string) (PersistFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "swallow":
		return PolicySwallow, nil
	case "propagate":
		return PolicyPropagate, nil
	case "retry":
		return PolicyRetry, nil
	default:
		return PolicySwallow, fmt.Errorf("audit: unknown persist failure policy %q", s)
	}
}

// ISequence 审计记录排序号生成器
type ISequence interface {
	NextID() (int64, error)
}

// Options 拦截器配置
type Options struct {
	// MarkFailedOnError 为 true 时失败路径写入 Succeeded=false 与错误信息；
	// 默认 false，失败路径同样写入 Succeeded=true
	MarkFailedOnError bool
	// PersistFailurePolicy 二次保存失败策略
	PersistFailurePolicy PersistFailurePolicy
	// Retry PolicyRetry 使用的重试配置
	Retry retry.Config
	// HonorCancellation 为 true 时二次保存沿用调用方 ctx（取消会导致审计丢失）；
	// 默认使用 context.WithoutCancel
	HonorCancellation bool

	Clock    func() time.Time
	NewID    func() (string, error)
	Sequence ISequence
	Logger   logging.Logger
	Metrics  *Metrics
	Sink     ISink
}

// Option 配置修改函数
type Option func(*Options)

// DefaultOptions 获取默认配置
func DefaultOptions() *Options {
	return &Options{
		PersistFailurePolicy: PolicySwallow,
		Retry:                retry.DefaultConfig(),
		Clock:                func() time.Time { return time.Now().UTC() },
		NewID:                newUUIDv7,
		Sequence:             snowflake.Default(),
		Logger:               logging.GetLogger().WithFields(logging.String("component", "audit.interceptor")),
	}
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// WithMarkFailedOnError 设置失败路径是否标记 Succeeded=false
func WithMarkFailedOnError(enabled bool) Option {
	return func(o *Options) {
		o.MarkFailedOnError = enabled
	}
}

// WithPersistFailurePolicy 设置二次保存失败策略
func WithPersistFailurePolicy(policy PersistFailurePolicy) Option {
	return func(o *Options) {
		o.PersistFailurePolicy = policy
	}
}

// WithRetry 设置重试配置
func WithRetry(cfg retry.Config) Option {
	return func(o *Options) {
		o.Retry = cfg
	}
}

// WithHonorCancellation 设置二次保存是否沿用调用方的取消信号
func WithHonorCancellation(enabled bool) Option {
	return func(o *Options) {
		o.HonorCancellation = enabled
	}
}

// WithClock 设置时钟
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithIDGenerator 设置记录 ID 生成函数
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *Options) {
		if fn != nil {
			o.NewID = fn
		}
	}
}

// WithSequence 设置排序号生成器
func WithSequence(seq ISequence) Option {
	return func(o *Options) {
		if seq != nil {
			o.Sequence = seq
		}
	}
}

// WithLogger 设置诊断日志；nil 表示关闭诊断输出
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) {
		if logger == nil {
			logger = logging.NewNoopLogger()
		}
		o.Logger = logger
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithSink 设置审计记录转发目标
func WithSink(sink ISink) Option {
	return func(o *Options) {
		o.Sink = sink
	}
}
