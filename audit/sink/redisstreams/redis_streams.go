// Package redisstreams 将已持久化的审计记录追加到 Redis Stream，供下游异步消费。
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auditor/audit"
	"auditor/logging"
)

// client captures the subset of go-redis commands we rely on (for easier testing).
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	Close() error
}

// Config describes how the Redis Streams sink should connect/behave.
type Config struct {
	Client   redis.UniversalClient
	Addr     string
	Username string
	Password string
	DB       int
	// Stream 目标流名称，默认 auditor:audit
	Stream string
	// MaxLen 流的近似最大长度，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger
}

// Sink 基于 XADD 的审计记录转发目标
type Sink struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
}

var _ audit.ISink = (*Sink)(nil)

// NewSink 创建 Redis Streams sink；未提供 Client 时按 Addr 自建连接
func NewSink(cfg Config) (*Sink, error) {
	var cl client
	var own bool
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redisstreams: redis client not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newSink(cfg, cl, own), nil
}

func newSink(cfg Config, cl client, own bool) *Sink {
	if cfg.Stream == "" {
		cfg.Stream = "auditor:audit"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "sink.redisstreams"))
	}
	return &Sink{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}
}

// Forward 逐条 XADD；Redis Streams 不支持一次追加多条
func (s *Sink) Forward(ctx context.Context, records []*audit.AuditRecord) error {
	for _, r := range records {
		values, err := encodeRecord(r)
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{Stream: s.cfg.Stream, Values: values}
		if s.cfg.MaxLen > 0 {
			args.MaxLen = s.cfg.MaxLen
			args.Approx = true
		}
		if err := s.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redisstreams: xadd %s: %w", r.ID, err)
		}
	}
	s.logger.Debug(ctx, "audit records forwarded",
		logging.String("stream", s.cfg.Stream), logging.Int("count", len(records)))
	return nil
}

// Recent 按写入倒序读取最近 count 条记录
func (s *Sink) Recent(ctx context.Context, count int64) ([]*audit.AuditRecord, error) {
	entries, err := s.client.XRevRangeN(ctx, s.cfg.Stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	records := make([]*audit.AuditRecord, 0, len(entries))
	for _, entry := range entries {
		r, err := decodeRecord(entry)
		if err != nil {
			s.logger.Warn(ctx, "skip undecodable stream entry",
				logging.String("entry_id", entry.ID), logging.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Close closes the redis client when the sink owns it.
func (s *Sink) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

func encodeRecord(r *audit.AuditRecord) (map[string]interface{}, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":        r.ID,
		"kind":      string(r.Kind),
		"sequence":  r.Sequence,
		"succeeded": strconv.FormatBool(r.Succeeded),
		"timestamp": r.StartTimeUTC.UnixNano(),
		"payload":   string(payload),
	}, nil
}

func decodeRecord(entry redis.XMessage) (*audit.AuditRecord, error) {
	raw, _ := entry.Values["payload"].(string)
	if raw == "" {
		return nil, errors.New("redisstreams: entry has no payload")
	}
	var r audit.AuditRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID, _ = entry.Values["id"].(string)
	}
	if r.StartTimeUTC.IsZero() {
		if ns, err := parseNanoString(entry.Values["timestamp"]); err == nil {
			r.StartTimeUTC = time.Unix(0, ns).UTC()
		}
	}
	return &r, nil
}

func parseNanoString(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
