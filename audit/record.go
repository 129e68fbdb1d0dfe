// Package audit 在工作单元的保存生命周期上捕获审计记录。
//
// Interceptor 挂在 uow.Session 上：保存前为每个待写入实体生成一条 AuditRecord，
// 保存成功或失败后补齐结束时间、耗时与结果，并通过一次仅包含审计记录的
// 二次保存持久化到 audit_entries 表。
package audit

import (
	"time"

	"auditor/data/uow"
)

// TableName 审计记录表名
const TableName = "audit_entries"

// Kind 审计记录对应的变更类型
type Kind string

const (
	KindAdded    Kind = "Added"
	KindModified Kind = "Modified"
	KindDeleted  Kind = "Deleted"
)

// KindFromState 将变更跟踪状态映射为审计类型；非写入状态返回 false
func KindFromState(state uow.EntityState) (Kind, bool) {
	switch state {
	case uow.Added:
		return KindAdded, true
	case uow.Modified:
		return KindModified, true
	case uow.Deleted:
		return KindDeleted, true
	default:
		return "", false
	}
}

// AuditRecord 一次实体变更的审计记录
//
// StartTimeUTC 在保存前写入，同一次保存的所有记录共享；
// EndTimeUTC、Duration、Succeeded、ErrorMessage 只在保存结束后由 finalize 写入。
// 两个时间都确定之前记录不会被持久化。
type AuditRecord struct {
	ID           string        `db:"id" json:"id"`
	Sequence     int64         `db:"sequence" json:"sequence"`
	Kind         Kind          `db:"kind" json:"kind"`
	Metadata     string        `db:"metadata" json:"metadata"`
	StartTimeUTC time.Time     `db:"start_time_utc" json:"startTimeUtc"`
	EndTimeUTC   time.Time     `db:"end_time_utc" json:"endTimeUtc"`
	Duration     time.Duration `db:"duration" json:"duration"`
	Succeeded    bool          `db:"succeeded" json:"succeeded"`
	ErrorMessage *string       `db:"error_message" json:"errorMessage,omitempty"`
}

// TableName 实现 orm 的表名约定
func (AuditRecord) TableName() string { return TableName }

// Finalized 记录是否已补齐结束信息
func (r *AuditRecord) Finalized() bool {
	return !r.EndTimeUTC.IsZero()
}

// Equal 审计记录按 ID 判等
func (r *AuditRecord) Equal(other *AuditRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID
}

// finalize 写入结束时间与结果；墙钟回拨时结束时间取开始时间
func (r *AuditRecord) finalize(end time.Time, succeeded bool, errMsg *string) {
	end = end.UTC()
	if end.Before(r.StartTimeUTC) {
		end = r.StartTimeUTC
	}
	r.EndTimeUTC = end
	r.Duration = end.Sub(r.StartTimeUTC)
	r.Succeeded = succeeded
	r.ErrorMessage = errMsg
}

// isAuditRecord 判断跟踪条目是否为审计记录自身
func isAuditRecord(e *uow.Entry) bool {
	switch e.Entity().(type) {
	case *AuditRecord:
		return true
	default:
		return false
	}
}
