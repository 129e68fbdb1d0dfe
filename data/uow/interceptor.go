package uow

import "context"

// SaveEventData 保存事件数据
//
// Session 为发起保存的会话；在会话之外调用拦截器时可能为 nil，
// 拦截器应将 nil 会话视为直通。Changes 为本次保存范围内的待写入条目。
type SaveEventData struct {
	Session *Session
	Changes []*Entry
}

// SaveCompletedEventData 保存成功事件数据
type SaveCompletedEventData struct {
	SaveEventData
	RowsAffected int
}

// SaveErrorEventData 保存失败事件数据
type SaveErrorEventData struct {
	SaveEventData
	Err error
}

// ISaveChangesInterceptor 保存拦截器
//
// 会话在一次保存中依次调用：
//   - SavingChanges：写入前，返回错误会中止本次保存并进入失败流程
//   - SavedChanges：提交成功后，可改写返回的受影响行数；每个拦截器都会被调用，
//     返回的错误汇总后交给调用方，出错的拦截器不改写行数
//   - SaveChangesFailed：写入或提交失败后，原始错误由会话继续返回
type ISaveChangesInterceptor interface {
	SavingChanges(ctx context.Context, ev *SaveEventData) error
	SavedChanges(ctx context.Context, ev *SaveCompletedEventData, rows int) (int, error)
	SaveChangesFailed(ctx context.Context, ev *SaveErrorEventData) error
}
