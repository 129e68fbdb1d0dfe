package audit

import (
	"context"
	stdErrors "errors"
)

// ISink 接收已持久化的审计记录（通知用途，不是变更数据捕获）
type ISink interface {
	Forward(ctx context.Context, records []*AuditRecord) error
}

// SinkFunc 函数适配器
type SinkFunc func(ctx context.Context, records []*AuditRecord) error

func (f SinkFunc) Forward(ctx context.Context, records []*AuditRecord) error {
	return f(ctx, records)
}

// MultiSink 依次转发到多个 sink，汇总全部错误
type MultiSink []ISink

func (m MultiSink) Forward(ctx context.Context, records []*AuditRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Forward(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}
