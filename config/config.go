// Package config 加载进程级配置：YAML 文件（可选）叠加 AUDITOR_* 环境变量。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"auditor/audit"
	"auditor/data/db"
	"auditor/logging"
	"auditor/patterns/retry"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "AUDITOR_"

// Config 进程配置
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Audit    AuditConfig    `koanf:"audit"`
	Sinks    SinksConfig    `koanf:"sinks"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatabaseConfig 数据库连接
type DatabaseConfig struct {
	Driver       string `koanf:"driver"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// LogConfig 日志
type LogConfig struct {
	Level string `koanf:"level"`
}

// AuditConfig 审计拦截器
type AuditConfig struct {
	PersistFailurePolicy string      `koanf:"persist_failure_policy"`
	MarkFailedOnError    bool        `koanf:"mark_failed_on_error"`
	HonorCancellation    bool        `koanf:"honor_cancellation"`
	Retry                RetryConfig `koanf:"retry"`
}

// RetryConfig PolicyRetry 的退避参数
type RetryConfig struct {
	MaxAttempts   int           `koanf:"max_attempts"`
	InitialDelay  time.Duration `koanf:"initial_delay"`
	BackoffFactor float64       `koanf:"backoff_factor"`
	MaxDelay      time.Duration `koanf:"max_delay"`
}

// SinksConfig 审计记录转发目标
type SinksConfig struct {
	Redis RedisSinkConfig `koanf:"redis"`
	NATS  NATSSinkConfig  `koanf:"nats"`
}

// RedisSinkConfig Redis Streams 转发
type RedisSinkConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Stream   string `koanf:"stream"`
	MaxLen   int64  `koanf:"max_len"`
}

// NATSSinkConfig NATS JetStream 转发
type NATSSinkConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	Stream        string `koanf:"stream"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// MetricsConfig 指标
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// envKeys 环境变量（去掉前缀后）到配置键的映射
var envKeys = map[string]string{
	"DATABASE_DRIVER":              "database.driver",
	"DATABASE_DSN":                 "database.dsn",
	"DATABASE_MAX_OPEN_CONNS":      "database.max_open_conns",
	"DATABASE_MAX_IDLE_CONNS":      "database.max_idle_conns",
	"LOG_LEVEL":                    "log.level",
	"AUDIT_PERSIST_FAILURE_POLICY": "audit.persist_failure_policy",
	"AUDIT_MARK_FAILED_ON_ERROR":   "audit.mark_failed_on_error",
	"AUDIT_HONOR_CANCELLATION":     "audit.honor_cancellation",
	"AUDIT_RETRY_MAX_ATTEMPTS":     "audit.retry.max_attempts",
	"AUDIT_RETRY_INITIAL_DELAY":    "audit.retry.initial_delay",
	"AUDIT_RETRY_BACKOFF_FACTOR":   "audit.retry.backoff_factor",
	"AUDIT_RETRY_MAX_DELAY":        "audit.retry.max_delay",
	"REDIS_ENABLED":                "sinks.redis.enabled",
	"REDIS_ADDR":                   "sinks.redis.addr",
	"REDIS_PASSWORD":               "sinks.redis.password",
	"REDIS_DB":                     "sinks.redis.db",
	"REDIS_STREAM":                 "sinks.redis.stream",
	"REDIS_MAX_LEN":                "sinks.redis.max_len",
	"NATS_ENABLED":                 "sinks.nats.enabled",
	"NATS_URL":                     "sinks.nats.url",
	"NATS_STREAM":                  "sinks.nats.stream",
	"NATS_SUBJECT_PREFIX":          "sinks.nats.subject_prefix",
	"METRICS_ENABLED":              "metrics.enabled",
}

// Default 返回默认配置：内存 sqlite、info 日志、swallow 策略
func Default() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Log:      LogConfig{Level: "info"},
		Audit: AuditConfig{
			PersistFailurePolicy: audit.PolicySwallow.String(),
			Retry: RetryConfig{
				MaxAttempts:   rc.MaxAttempts,
				InitialDelay:  rc.InitialDelay,
				BackoffFactor: rc.BackoffFactor,
				MaxDelay:      rc.MaxDelay,
			},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load 依次叠加默认值、path 指向的 YAML 文件（为空则跳过）与环境变量，然后校验
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	for env, key := range envKeys {
		if val, ok := lookup(EnvPrefix + env); ok && val != "" {
			if err := k.Set(key, val); err != nil {
				return nil, fmt.Errorf("config: apply %s%s: %w", EnvPrefix, env, err)
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 汇总全部配置错误
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver == "" {
		errs = append(errs, errors.New("database.driver is required"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	policy, err := audit.ParsePersistFailurePolicy(c.Audit.PersistFailurePolicy)
	if err != nil {
		errs = append(errs, err)
	}
	if policy == audit.PolicyRetry && c.Audit.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("audit.retry.max_attempts must be at least 1"))
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Addr == "" {
		errs = append(errs, errors.New("sinks.redis.addr is required when the redis sink is enabled"))
	}
	if c.Sinks.NATS.Enabled && c.Sinks.NATS.URL == "" {
		errs = append(errs, errors.New("sinks.nats.url is required when the nats sink is enabled"))
	}
	return errors.Join(errs...)
}

// DBConfig 转换为数据库层配置
func (c DatabaseConfig) DBConfig() db.DBConfig {
	return db.DBConfig{
		Driver:       c.Driver,
		Database:     c.DSN,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
	}
}

// LogLevel 解析日志级别
func (c LogConfig) LogLevel() logging.Level {
	return logging.ParseLevel(c.Level)
}

// Options 转换为审计拦截器选项
func (c AuditConfig) Options() ([]audit.Option, error) {
	policy, err := audit.ParsePersistFailurePolicy(c.PersistFailurePolicy)
	if err != nil {
		return nil, err
	}
	return []audit.Option{
		audit.WithPersistFailurePolicy(policy),
		audit.WithMarkFailedOnError(c.MarkFailedOnError),
		audit.WithHonorCancellation(c.HonorCancellation),
		audit.WithRetry(retry.Config{
			MaxAttempts:   c.Retry.MaxAttempts,
			InitialDelay:  c.Retry.InitialDelay,
			BackoffFactor: c.Retry.BackoffFactor,
			MaxDelay:      c.Retry.MaxDelay,
		}),
	}, nil
}
