// Package natsjetstream 将已持久化的审计记录发布到 NATS JetStream。
//
// 每条记录发布到 <SubjectPrefix><kind>，并以记录 ID 作为 Nats-Msg-Id，
// 重复转发由 JetStream 的去重窗口吸收。
package natsjetstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"auditor/audit"
	"auditor/logging"
)

// jetStream 是 nats.JetStreamContext 中本包用到的子集
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Config configures the JetStream sink.
type Config struct {
	URL           string
	Conn          *nats.Conn
	Stream        string
	SubjectPrefix string
	Logger        logging.Logger

	// 可选：流参数
	Retention string // limits|workqueue|interest（默认 limits）
	MaxBytes  int64  // 0 表示不设置
	Replicas  int    // 0 表示默认
}

// Sink 审计记录的 JetStream 转发目标
type Sink struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       jetStream
	ownsConn bool

	mu   sync.RWMutex
	open bool
}

var _ audit.ISink = (*Sink)(nil)

// NewSink builds a JetStream sink; call Open before forwarding.
func NewSink(cfg Config) *Sink {
	if cfg.Stream == "" {
		cfg.Stream = "AUDITOR"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "audit."
	}
	if !strings.HasSuffix(cfg.SubjectPrefix, ".") {
		cfg.SubjectPrefix += "."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "sink.natsjetstream"))
	}
	return &Sink{cfg: cfg, logger: cfg.Logger}
}

// Open 建立连接并确保流存在
func (s *Sink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return errors.New("nats sink already open")
	}
	if err := s.ensureConnection(); err != nil {
		return err
	}
	if err := s.ensureStream(); err != nil {
		return err
	}
	s.open = true
	s.logger.Info(ctx, "nats sink opened",
		logging.String("stream", s.cfg.Stream), logging.String("subjects", s.cfg.SubjectPrefix+">"))
	return nil
}

// Forward 逐条发布审计记录并等待 PubAck
func (s *Sink) Forward(ctx context.Context, records []*audit.AuditRecord) error {
	s.mu.RLock()
	js := s.js
	open := s.open
	s.mu.RUnlock()
	if !open || js == nil {
		return errors.New("nats sink not open")
	}

	var opts []nats.PubOpt
	if _, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Context(ctx))
	}
	for _, r := range records {
		msg, err := s.newMsg(r)
		if err != nil {
			return err
		}
		if _, err := js.PublishMsg(msg, opts...); err != nil {
			return fmt.Errorf("natsjetstream: publish %s: %w", r.ID, err)
		}
	}
	return nil
}

// Close drains the connection when the sink owns it.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	if s.ownsConn && s.conn != nil {
		err := s.conn.Drain()
		s.conn = nil
		s.js = nil
		return err
	}
	return nil
}

func (s *Sink) ensureConnection() error {
	if s.js != nil {
		return nil
	}
	if s.cfg.Conn != nil {
		s.conn = s.cfg.Conn
	} else {
		if s.cfg.URL == "" {
			s.cfg.URL = nats.DefaultURL
		}
		conn, err := nats.Connect(s.cfg.URL)
		if err != nil {
			return err
		}
		s.conn = conn
		s.ownsConn = true
	}
	js, err := s.conn.JetStream()
	if err != nil {
		return err
	}
	s.js = js
	return nil
}

func (s *Sink) ensureStream() error {
	_, err := s.js.StreamInfo(s.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	// 审计轨迹需要保留，默认 limits 而不是 workqueue
	retention := nats.LimitsPolicy
	switch strings.ToLower(s.cfg.Retention) {
	case "workqueue":
		retention = nats.WorkQueuePolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:      s.cfg.Stream,
		Subjects:  []string{s.cfg.SubjectPrefix + ">"},
		Retention: retention,
	}
	if s.cfg.MaxBytes > 0 {
		sc.MaxBytes = s.cfg.MaxBytes
	}
	if s.cfg.Replicas > 0 {
		sc.Replicas = s.cfg.Replicas
	}
	_, err = s.js.AddStream(sc)
	return err
}

func (s *Sink) subjectName(kind audit.Kind) string {
	return s.cfg.SubjectPrefix + strings.ToLower(string(kind))
}

func (s *Sink) newMsg(r *audit.AuditRecord) (*nats.Msg, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(s.subjectName(r.Kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, r.ID)
	msg.Header.Set("Audit-Kind", string(r.Kind))
	return msg, nil
}
