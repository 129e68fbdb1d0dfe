package uow

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"auditor/data/orm"
)

// Entry 变更跟踪器中的单个实体条目
type Entry struct {
	entity   any
	state    EntityState
	meta     *orm.ModelMeta
	sm       *orm.StructMeta
	original map[string]any
}

// Entity 返回被跟踪的实体指针
func (e *Entry) Entity() any { return e.entity }

// State 返回当前状态
func (e *Entry) State() EntityState { return e.state }

// Meta 返回实体的模型元信息
func (e *Entry) Meta() *orm.ModelMeta { return e.meta }

// OriginalValue 返回列的原始快照值（实体变为 Unchanged 时记录）
func (e *Entry) OriginalValue(column string) (any, bool) {
	if e.original == nil {
		return nil, false
	}
	v, ok := e.original[column]
	return v, ok
}

// ModifiedColumns 返回当前值与原始快照不同的列（按声明顺序）
func (e *Entry) ModifiedColumns() []string {
	if e.original == nil {
		return nil
	}
	var cols []string
	for _, f := range e.sm.Fields {
		cur, _ := e.sm.Value(e.entity, f)
		if !reflect.DeepEqual(cur, e.original[f.Column]) {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// KeyValues 返回主键列与值（按 ModelMeta.PrimaryKeys 顺序）
func (e *Entry) KeyValues() ([]string, []any) {
	keys := e.meta.PrimaryKeys()
	values := make([]any, len(keys))
	for i, col := range keys {
		if f, ok := e.sm.FieldByColumn(col); ok {
			values[i], _ = e.sm.Value(e.entity, f)
		}
	}
	return keys, values
}

// DebugView 渲染实体的可读快照，形如：
//
//	SuperHero {ID: 1} Modified
//	  ID: 1 PK
//	  Name: 'Batman' Modified Originally 'Bruce'
//	  Place: 'Gotham'
func (e *Entry) DebugView() string {
	var sb strings.Builder

	keys, values := e.KeyValues()
	keyParts := make([]string, len(keys))
	for i, col := range keys {
		name := col
		if f, ok := e.sm.FieldByColumn(col); ok {
			name = f.Name
		}
		keyParts[i] = name + ": " + formatDebugValue(values[i], false)
	}
	fmt.Fprintf(&sb, "%s {%s} %s", e.sm.Type.Name(), strings.Join(keyParts, ", "), e.state)

	modified := make(map[string]bool)
	if e.state == Modified {
		for _, col := range e.ModifiedColumns() {
			modified[col] = true
		}
	}

	for _, f := range e.sm.Fields {
		cur, _ := e.sm.Value(e.entity, f)
		sb.WriteString("\n  ")
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(formatDebugValue(cur, true))
		if f.PrimaryKey {
			sb.WriteString(" PK")
			if e.state == Added && f.AutoIncrement && isZero(cur) {
				sb.WriteString(" Temporary")
			}
		}
		if e.state == Modified {
			switch {
			case e.original == nil && !f.PrimaryKey:
				sb.WriteString(" Modified")
			case modified[f.Column]:
				sb.WriteString(" Modified Originally ")
				sb.WriteString(formatDebugValue(e.original[f.Column], true))
			}
		}
	}
	return sb.String()
}

func formatDebugValue(v any, quote bool) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "<null>"
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "<null>"
	}

	switch val := rv.Interface().(type) {
	case time.Time:
		s := val.UTC().Format(time.RFC3339Nano)
		if quote {
			return "'" + s + "'"
		}
		return s
	case string:
		if quote {
			return "'" + val + "'"
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func isZero(v any) bool {
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || rv.IsZero()
}

func (e *Entry) snapshot() {
	e.original = e.sm.Values(e.entity)
}

// ChangeTracker 按跟踪顺序维护实体条目；非并发安全
type ChangeTracker struct {
	entries []*Entry
	index   map[any]*Entry
}

func newChangeTracker() *ChangeTracker {
	return &ChangeTracker{index: make(map[any]*Entry)}
}

// Entries 返回全部条目（按跟踪顺序的副本）
func (t *ChangeTracker) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Entry 返回实体对应的条目
func (t *ChangeTracker) Entry(entity any) (*Entry, bool) {
	e, ok := t.index[entity]
	return e, ok
}

// Track 以指定状态跟踪实体；已跟踪的实体仅更新状态。
// Unchanged 状态会刷新原始值快照。
func (t *ChangeTracker) Track(entity any, meta *orm.ModelMeta, state EntityState) (*Entry, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("uow: entity must be a non-nil pointer to struct, got %T", entity)
	}

	if state == Detached {
		t.detach(entity)
		return nil, nil
	}

	e, ok := t.index[entity]
	if !ok {
		sm, err := orm.StructMetaOf(entity)
		if err != nil {
			return nil, err
		}
		e = &Entry{entity: entity, meta: meta, sm: sm}
		t.entries = append(t.entries, e)
		t.index[entity] = e
	}
	e.state = state
	if state == Unchanged {
		e.snapshot()
	}
	return e, nil
}

func (t *ChangeTracker) detach(entity any) {
	e, ok := t.index[entity]
	if !ok {
		return
	}
	delete(t.index, entity)
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	e.state = Detached
}

// DetectChanges 将与快照不一致的 Unchanged 条目标记为 Modified
func (t *ChangeTracker) DetectChanges() {
	for _, e := range t.entries {
		if e.state == Unchanged && len(e.ModifiedColumns()) > 0 {
			e.state = Modified
		}
	}
}

// HasChanges 判断是否存在待保存的条目
func (t *ChangeTracker) HasChanges() bool {
	t.DetectChanges()
	for _, e := range t.entries {
		if e.state.IsPending() {
			return true
		}
	}
	return false
}

// AcceptChanges 将已写入的条目标记为 Unchanged；Deleted 条目停止跟踪
func (t *ChangeTracker) AcceptChanges(entries []*Entry) {
	for _, e := range entries {
		switch e.state {
		case Added, Modified:
			e.state = Unchanged
			e.snapshot()
		case Deleted:
			t.detach(e.entity)
		}
	}
}

// AcceptAllChanges 接受全部待保存条目
func (t *ChangeTracker) AcceptAllChanges() {
	t.AcceptChanges(t.Entries())
}

// pending 返回过滤后的待保存条目
func (t *ChangeTracker) pending(filter func(*Entry) bool) []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if !e.state.IsPending() {
			continue
		}
		if filter != nil && !filter(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
