// Package uow 提供工作单元（Unit of Work）会话：跟踪实体变更，
// 在 SaveChanges 时统一提交，并在提交前后回调保存拦截器。
package uow

import "fmt"

// EntityState 实体在变更跟踪器中的状态
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

// String 返回状态名称
func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// IsPending 判断该状态是否需要在下一次保存时写入
func (s EntityState) IsPending() bool {
	return s == Added || s == Modified || s == Deleted
}
