package orm

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// StructField 描述结构体字段到列的映射。
type StructField struct {
	Name          string
	Column        string
	Index         []int
	PrimaryKey    bool
	AutoIncrement bool
}

// StructMeta 结构体反射元信息（按类型缓存）。
type StructMeta struct {
	Type     reflect.Type
	Fields   []StructField
	byColumn map[string]StructField
}

var structMetaCache sync.Map // map[reflect.Type]*StructMeta

// StructMetaOf 返回实体（struct 或 *struct）的反射元信息。
//
// 列名解析顺序：gorm:"column:x" > db:"x" > json:"x" > 字段名 snake_case；
// `db:"-"` 的字段被忽略。主键取 gorm 标签中的 primaryKey，缺省时名为 id 的列视为主键。
func StructMetaOf(v any) (*StructMeta, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, fmt.Errorf("orm: nil entity")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("orm: entity must be struct or *struct, got %T", v)
	}

	if cached, ok := structMetaCache.Load(t); ok {
		return cached.(*StructMeta), nil
	}
	sm := buildStructMeta(t)
	actual, _ := structMetaCache.LoadOrStore(t, sm)
	return actual.(*StructMeta), nil
}

// FieldByColumn 按列名查找字段。
func (sm *StructMeta) FieldByColumn(column string) (StructField, bool) {
	f, ok := sm.byColumn[column]
	return f, ok
}

// Columns 返回全部列名（按声明顺序）。
func (sm *StructMeta) Columns() []string {
	cols := make([]string, len(sm.Fields))
	for i, f := range sm.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Value 读取实体上指定字段的值；字段不可达（例如内嵌指针为 nil）时 ok=false。
func (sm *StructMeta) Value(entity any, f StructField) (value any, ok bool) {
	fv := FieldByIndexSafe(reflect.ValueOf(entity), f.Index)
	if !fv.IsValid() {
		return nil, false
	}
	return fv.Interface(), true
}

// Values 按列顺序返回实体的全部列值快照。
func (sm *StructMeta) Values(entity any) map[string]any {
	values := make(map[string]any, len(sm.Fields))
	for _, f := range sm.Fields {
		v, _ := sm.Value(entity, f)
		values[f.Column] = v
	}
	return values
}

func buildStructMeta(t reflect.Type) *StructMeta {
	sm := &StructMeta{
		Type:     t,
		byColumn: make(map[string]StructField),
	}

	var walk func(reflect.Type, []int)
	walk = func(cur reflect.Type, prefix []int) {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			if f.PkgPath != "" {
				continue
			}
			index := append(append([]int(nil), prefix...), i)

			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isTimeType(f.Type) {
				walk(f.Type, index)
				continue
			}
			if f.Tag.Get("db") == "-" || !isScalarDBField(f.Type) {
				continue
			}

			col, pk, auto := parseColumnTag(f)
			if col == "" {
				col = toSnakeCase(f.Name)
			}
			field := StructField{
				Name:          f.Name,
				Column:        col,
				Index:         index,
				PrimaryKey:    pk,
				AutoIncrement: auto,
			}
			// 后来的同名列覆盖之前的定义（以最内层为准）
			if _, exists := sm.byColumn[col]; exists {
				for j := range sm.Fields {
					if sm.Fields[j].Column == col {
						sm.Fields[j] = field
					}
				}
			} else {
				sm.Fields = append(sm.Fields, field)
			}
			sm.byColumn[col] = field
		}
	}
	walk(t, nil)

	hasPK := false
	for _, f := range sm.Fields {
		hasPK = hasPK || f.PrimaryKey
	}
	if !hasPK {
		for i, f := range sm.Fields {
			if f.Column == "id" {
				sm.Fields[i].PrimaryKey = true
				sm.byColumn["id"] = sm.Fields[i]
			}
		}
	}
	return sm
}

func isScalarDBField(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if isTimeType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == "time" && t.Name() == "Time"
}

func parseColumnTag(f reflect.StructField) (column string, primaryKey, autoIncrement bool) {
	if gormTag := f.Tag.Get("gorm"); gormTag != "" {
		for _, part := range strings.Split(gormTag, ";") {
			part = strings.TrimSpace(part)
			switch {
			case strings.HasPrefix(part, "column:"):
				column = strings.TrimPrefix(part, "column:")
			case strings.EqualFold(part, "primaryKey"), strings.EqualFold(part, "primary_key"):
				primaryKey = true
			case strings.EqualFold(part, "autoIncrement"):
				autoIncrement = true
			}
		}
	}

	if column == "" {
		if dbTag := f.Tag.Get("db"); dbTag != "" {
			column = strings.Split(dbTag, ",")[0]
		} else if jsonTag := f.Tag.Get("json"); jsonTag != "" && jsonTag != "-" {
			column = strings.Split(jsonTag, ",")[0]
		}
	}

	return column, primaryKey, autoIncrement
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			sb.WriteByte('_')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// FieldByIndexSafe 沿索引路径取字段，遇到 nil 内嵌指针时返回零值 Value。
func FieldByIndexSafe(v reflect.Value, index []int) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

// TableNameOf 尝试从模型实例上调用 TableName()。
func TableNameOf(model any) (string, bool) {
	if model == nil {
		return "", false
	}
	if m, ok := model.(interface{ TableName() string }); ok {
		return m.TableName(), true
	}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", false
	}
	if m, ok := reflect.New(t).Interface().(interface{ TableName() string }); ok {
		return m.TableName(), true
	}
	return "", false
}
